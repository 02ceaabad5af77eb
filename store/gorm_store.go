package store

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/recall-archive/recall/models"
)

// GormStore is the postgres-backed MediaStore.
type GormStore struct {
	db          *gorm.DB
	maxAttempts int
}

// NewGormStore wraps db. Records whose attempt counter reaches maxAttempts
// are excluded from ListUnprocessed; maxAttempts <= 0 disables the cap.
func NewGormStore(db *gorm.DB, maxAttempts int) *GormStore {
	return &GormStore{db: db, maxAttempts: maxAttempts}
}

func (s *GormStore) CreateMedia(ctx context.Context, record *models.MediaRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(err, "create media record")
	}
	return nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	var record models.MediaRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get media record")
	}
	return &record, nil
}

func (s *GormStore) ListUnprocessed(ctx context.Context, limit int) ([]models.MediaRecord, error) {
	query := s.db.WithContext(ctx).Where("processed = ?", false)
	if s.maxAttempts > 0 {
		query = query.Where("attempts < ?", s.maxAttempts)
	}

	var records []models.MediaRecord
	err := query.Order("created_at asc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list unprocessed records")
	}
	return records, nil
}

func (s *GormStore) UpdateAnnotations(ctx context.Context, id string, tags []string, description string) error {
	result := s.db.WithContext(ctx).Model(&models.MediaRecord{}).Where("id = ?", id).Updates(map[string]any{
		"tags":        models.StringList(tags),
		"description": description,
		"processed":   true,
	})
	if result.Error != nil {
		return errors.Wrap(result.Error, "update annotations")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementAttempts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.MediaRecord{}).Where("id IN ?", ids).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return errors.Wrap(err, "increment attempts")
	}
	return nil
}

func (s *GormStore) MarkUnprocessed(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Model(&models.MediaRecord{}).Where("id = ?", id).Updates(map[string]any{
		"tags":        models.StringList{},
		"description": nil,
		"processed":   false,
		"attempts":    0,
	})
	if result.Error != nil {
		return errors.Wrap(result.Error, "mark unprocessed")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListRecent(ctx context.Context, mediaType models.MediaType, limit int) ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	err := s.db.WithContext(ctx).Where("media_type = ?", mediaType).
		Order("created_at desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list recent records")
	}
	return records, nil
}

func (s *GormStore) ListByAudioID(ctx context.Context, audioID string) ([]models.MediaRecord, error) {
	var records []models.MediaRecord
	err := s.db.WithContext(ctx).Where("audio_id = ?", audioID).
		Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list records by audio id")
	}
	return records, nil
}

func (s *GormStore) CreateAudio(ctx context.Context, record *models.AudioRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(err, "create audio record")
	}
	return nil
}

func (s *GormStore) GetAudio(ctx context.Context, id string) (*models.AudioRecord, error) {
	var record models.AudioRecord
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get audio record")
	}
	return &record, nil
}

func (s *GormStore) SetAudioTranscription(ctx context.Context, id string, transcription string, embedding []float32) error {
	updates := map[string]any{"transcription": transcription}
	if transcription == "" || len(embedding) == 0 {
		// Embeddings are derived from the transcript; without one there is
		// nothing to store.
		updates["embedding"] = nil
	} else {
		vec := pgvector.NewVector(embedding)
		updates["embedding"] = vec
	}

	result := s.db.WithContext(ctx).Model(&models.AudioRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return errors.Wrap(result.Error, "set audio transcription")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListAudioEmbeddings(ctx context.Context) ([]AudioEmbedding, error) {
	var records []models.AudioRecord
	err := s.db.WithContext(ctx).Where("embedding IS NOT NULL").
		Order("created_at asc").Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list audio embeddings")
	}

	embeddings := make([]AudioEmbedding, 0, len(records))
	for _, record := range records {
		if record.Embedding == nil {
			continue
		}
		embeddings = append(embeddings, AudioEmbedding{
			AudioID: record.ID,
			Vector:  record.Embedding.Slice(),
		})
	}
	return embeddings, nil
}
