package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/models"
	"github.com/recall-archive/recall/services"
	"github.com/recall-archive/recall/store"
)

func testLogger() log.Logger {
	return log.Logger{Writer: &log.IOWriter{Writer: io.Discard}}
}

// fakeStore is an in-memory MediaStore covering what the worker touches.
type fakeStore struct {
	media       map[string]*models.MediaRecord
	order       []string
	failUpdates map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{media: make(map[string]*models.MediaRecord), failUpdates: make(map[string]error)}
}

func (f *fakeStore) add(record models.MediaRecord) {
	f.media[record.ID] = &record
	f.order = append(f.order, record.ID)
}

func (f *fakeStore) CreateMedia(ctx context.Context, record *models.MediaRecord) error {
	f.add(*record)
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	record, ok := f.media[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) ListUnprocessed(ctx context.Context, limit int) ([]models.MediaRecord, error) {
	var out []models.MediaRecord
	for _, id := range f.order {
		record := f.media[id]
		if record.Processed {
			continue
		}
		out = append(out, *record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateAnnotations(ctx context.Context, id string, tags []string, description string) error {
	if err, ok := f.failUpdates[id]; ok {
		return err
	}
	record, ok := f.media[id]
	if !ok {
		return store.ErrNotFound
	}
	record.Tags = models.StringList(tags)
	record.Description = &description
	record.Processed = true
	return nil
}

func (f *fakeStore) IncrementAttempts(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if record, ok := f.media[id]; ok {
			record.Attempts++
		}
	}
	return nil
}

func (f *fakeStore) MarkUnprocessed(ctx context.Context, id string) error {
	record, ok := f.media[id]
	if !ok {
		return store.ErrNotFound
	}
	record.Tags = models.StringList{}
	record.Description = nil
	record.Processed = false
	record.Attempts = 0
	return nil
}

func (f *fakeStore) ListRecent(ctx context.Context, mediaType models.MediaType, limit int) ([]models.MediaRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListByAudioID(ctx context.Context, audioID string) ([]models.MediaRecord, error) {
	return nil, nil
}

func (f *fakeStore) CreateAudio(ctx context.Context, record *models.AudioRecord) error { return nil }

func (f *fakeStore) GetAudio(ctx context.Context, id string) (*models.AudioRecord, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) SetAudioTranscription(ctx context.Context, id string, transcription string, embedding []float32) error {
	return nil
}

func (f *fakeStore) ListAudioEmbeddings(ctx context.Context) ([]store.AudioEmbedding, error) {
	return nil, nil
}

// stubAnnotator counts calls and produces per-position annotations.
type stubAnnotator struct {
	calls int
	err   error
}

func (s *stubAnnotator) AnnotateImages(ctx context.Context, images []services.ImageData, maxTags int) ([]models.Annotation, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	results := make([]models.Annotation, len(images))
	for i := range images {
		results[i] = models.Annotation{
			Tags:        []string{"auto"},
			Description: "described",
		}
	}
	return results, nil
}

func validPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestWorker(t *testing.T, f *fakeStore, annotator *stubAnnotator, files map[string][]byte) *EnrichmentWorker {
	t.Helper()
	tagging := services.NewTaggingService(annotator, testLogger())
	w := NewEnrichmentWorker(f, tagging, config.WorkerConfig{
		Interval:  time.Millisecond,
		BatchSize: 10,
		MaxTags:   20,
	}, testLogger())
	w.readFile = func(path string) ([]byte, error) {
		data, ok := files[path]
		if !ok {
			return nil, errors.Errorf("no such file %s", path)
		}
		return data, nil
	}
	return w
}

func unprocessedRecord(id string) models.MediaRecord {
	return models.MediaRecord{
		ID:        id,
		MediaType: models.MediaTypeImage,
		CreatedAt: time.Now(),
		FilePath:  "/media/" + id,
	}
}

func TestTickNoUnprocessedMakesNoCapabilityCall(t *testing.T) {
	f := newFakeStore()
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, nil)

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, 0, annotator.calls)
}

func TestTickCommitsBatch(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-1"))
	f.add(unprocessedRecord("m-2"))
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, map[string][]byte{
		"/media/m-1": validPNG(t),
		"/media/m-2": validPNG(t),
	})

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, 1, annotator.calls)

	for _, id := range []string{"m-1", "m-2"} {
		record := f.media[id]
		assert.True(t, record.Processed, "%s should be processed", id)
		assert.Equal(t, models.StringList{"auto"}, record.Tags)
		require.NotNil(t, record.Description)
		assert.Equal(t, "described", *record.Description)
	}
}

func TestTickAlreadyProcessedNotRefetched(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-1"))
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, map[string][]byte{"/media/m-1": validPNG(t)})

	require.NoError(t, w.Tick(context.Background()))
	require.NoError(t, w.Tick(context.Background()))

	// The second tick fetched nothing: processed records never come back
	// from ListUnprocessed.
	assert.Equal(t, 1, annotator.calls)
}

func TestTickBatchFailureLeavesRecordsForRetry(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-1"))
	f.add(unprocessedRecord("m-2"))
	annotator := &stubAnnotator{err: errors.New("vision service down")}
	w := newTestWorker(t, f, annotator, map[string][]byte{
		"/media/m-1": validPNG(t),
		"/media/m-2": validPNG(t),
	})

	err := w.Tick(context.Background())
	require.Error(t, err)

	for _, id := range []string{"m-1", "m-2"} {
		record := f.media[id]
		assert.False(t, record.Processed)
		assert.Equal(t, 1, record.Attempts, "failed batch counts one attempt")
	}

	// Next tick retries the same records.
	annotator.err = nil
	require.NoError(t, w.Tick(context.Background()))
	assert.True(t, f.media["m-1"].Processed)
	assert.True(t, f.media["m-2"].Processed)
}

func TestTickPartialCommit(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-ok"))
	f.add(unprocessedRecord("m-bad"))
	f.failUpdates["m-bad"] = errors.New("row lock timeout")
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, map[string][]byte{
		"/media/m-ok":  validPNG(t),
		"/media/m-bad": validPNG(t),
	})

	require.NoError(t, w.Tick(context.Background()))

	assert.True(t, f.media["m-ok"].Processed, "siblings still commit")
	assert.False(t, f.media["m-bad"].Processed, "failed record stays unprocessed for retry")
}

func TestTickUndecodableRecordAccruesAttempts(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-ok"))
	f.add(unprocessedRecord("m-junk"))
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, map[string][]byte{
		"/media/m-ok":   validPNG(t),
		"/media/m-junk": []byte("not an image at all"),
	})

	require.NoError(t, w.Tick(context.Background()))

	assert.True(t, f.media["m-ok"].Processed)
	junk := f.media["m-junk"]
	assert.False(t, junk.Processed)
	assert.Equal(t, 1, junk.Attempts, "dropped record counts against the retry cap")
}

func TestTickUnreadableFileSkipsRecord(t *testing.T) {
	f := newFakeStore()
	f.add(unprocessedRecord("m-missing"))
	annotator := &stubAnnotator{}
	w := newTestWorker(t, f, annotator, nil)

	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, 0, annotator.calls, "nothing readable, nothing sent")
	assert.False(t, f.media["m-missing"].Processed)
}

func TestRunStopsPromptlyOnCancel(t *testing.T) {
	f := newFakeStore()
	annotator := &stubAnnotator{}
	tagging := services.NewTaggingService(annotator, testLogger())
	w := NewEnrichmentWorker(f, tagging, config.WorkerConfig{
		Interval:  time.Hour, // the sleep, not the test, must be interruptible
		BatchSize: 10,
		MaxTags:   20,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop promptly after cancellation")
	}
}
