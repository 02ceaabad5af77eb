package services

import (
	"context"

	"github.com/recall-archive/recall/models"
	"github.com/recall-archive/recall/store"
)

// fakeStore is an in-memory MediaStore for tests, with call counters where
// tests assert on query traffic.
type fakeStore struct {
	media      []models.MediaRecord
	audio      map[string]models.AudioRecord
	embeddings []store.AudioEmbedding

	listRecentCalls     int
	listEmbeddingsCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{audio: make(map[string]models.AudioRecord)}
}

func (f *fakeStore) CreateMedia(ctx context.Context, record *models.MediaRecord) error {
	f.media = append(f.media, *record)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	for i := range f.media {
		if f.media[i].ID == id {
			record := f.media[i]
			return &record, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListUnprocessed(ctx context.Context, limit int) ([]models.MediaRecord, error) {
	var out []models.MediaRecord
	for _, record := range f.media {
		if record.Processed {
			continue
		}
		out = append(out, record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAnnotations(ctx context.Context, id string, tags []string, description string) error {
	for i := range f.media {
		if f.media[i].ID == id {
			f.media[i].Tags = models.StringList(tags)
			f.media[i].Description = &description
			f.media[i].Processed = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) IncrementAttempts(ctx context.Context, ids []string) error {
	for _, id := range ids {
		for i := range f.media {
			if f.media[i].ID == id {
				f.media[i].Attempts++
			}
		}
	}
	return nil
}

func (f *fakeStore) MarkUnprocessed(ctx context.Context, id string) error {
	for i := range f.media {
		if f.media[i].ID == id {
			f.media[i].Tags = models.StringList{}
			f.media[i].Description = nil
			f.media[i].Processed = false
			f.media[i].Attempts = 0
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListRecent(ctx context.Context, mediaType models.MediaType, limit int) ([]models.MediaRecord, error) {
	f.listRecentCalls++
	var out []models.MediaRecord
	for _, record := range f.media {
		if record.MediaType != mediaType {
			continue
		}
		out = append(out, record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListByAudioID(ctx context.Context, audioID string) ([]models.MediaRecord, error) {
	var out []models.MediaRecord
	for _, record := range f.media {
		if record.AudioID != nil && *record.AudioID == audioID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAudio(ctx context.Context, record *models.AudioRecord) error {
	f.audio[record.ID] = *record
	return nil
}

func (f *fakeStore) GetAudio(ctx context.Context, id string) (*models.AudioRecord, error) {
	record, ok := f.audio[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (f *fakeStore) SetAudioTranscription(ctx context.Context, id string, transcription string, embedding []float32) error {
	record, ok := f.audio[id]
	if !ok {
		return store.ErrNotFound
	}
	record.Transcription = &transcription
	f.audio[id] = record
	if transcription != "" && len(embedding) > 0 {
		f.embeddings = append(f.embeddings, store.AudioEmbedding{AudioID: id, Vector: embedding})
	}
	return nil
}

func (f *fakeStore) ListAudioEmbeddings(ctx context.Context) ([]store.AudioEmbedding, error) {
	f.listEmbeddingsCalls++
	return f.embeddings, nil
}
