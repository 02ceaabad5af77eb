// Package store is the persistence boundary for the archive. The pipeline
// only ever talks to the MediaStore interface; the gorm implementation
// below is what production wires in.
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/recall-archive/recall/models"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// AudioEmbedding is one audio record's embedding, as returned by
// ListAudioEmbeddings. The vector is a copy; mutating it does not touch
// the stored row.
type AudioEmbedding struct {
	AudioID string
	Vector  []float32
}

// MediaStore exposes the record operations the enrichment and retrieval
// pipeline needs. All writes are atomic single-row updates keyed by id.
type MediaStore interface {
	CreateMedia(ctx context.Context, record *models.MediaRecord) error
	GetByID(ctx context.Context, id string) (*models.MediaRecord, error)

	// ListUnprocessed returns up to limit records with processed=false whose
	// attempt count is below the retry cap, oldest first. It never returns a
	// processed record.
	ListUnprocessed(ctx context.Context, limit int) ([]models.MediaRecord, error)

	// UpdateAnnotations commits one enrichment result: tags, description and
	// processed=true in a single update.
	UpdateAnnotations(ctx context.Context, id string, tags []string, description string) error

	// IncrementAttempts bumps the enrichment attempt counter for each id.
	IncrementAttempts(ctx context.Context, ids []string) error

	// MarkUnprocessed clears annotations and resets the attempt counter so
	// the record is re-enriched on a later worker tick.
	MarkUnprocessed(ctx context.Context, id string) error

	ListRecent(ctx context.Context, mediaType models.MediaType, limit int) ([]models.MediaRecord, error)
	ListByAudioID(ctx context.Context, audioID string) ([]models.MediaRecord, error)

	CreateAudio(ctx context.Context, record *models.AudioRecord) error
	GetAudio(ctx context.Context, id string) (*models.AudioRecord, error)

	// SetAudioTranscription replaces the transcription and its derived
	// embedding wholesale. An empty transcription always clears the
	// embedding; embeddings are never hand-set.
	SetAudioTranscription(ctx context.Context, id string, transcription string, embedding []float32) error

	// ListAudioEmbeddings returns every audio record with a non-null
	// embedding, in stable creation order.
	ListAudioEmbeddings(ctx context.Context) ([]AudioEmbedding, error)
}
