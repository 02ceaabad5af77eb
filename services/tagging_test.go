package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recall-archive/recall/models"
)

// stubAnnotator returns one annotation per image whose description encodes
// the image's position in the batch.
type stubAnnotator struct {
	calls       int
	lastBatch   []ImageData
	err         error
	annotations []models.Annotation
}

func (s *stubAnnotator) AnnotateImages(ctx context.Context, images []ImageData, maxTags int) ([]models.Annotation, error) {
	s.calls++
	s.lastBatch = images
	if s.err != nil {
		return nil, s.err
	}
	if s.annotations != nil {
		return s.annotations, nil
	}
	results := make([]models.Annotation, len(images))
	for i := range images {
		results[i] = models.Annotation{
			Tags:        []string{"tag"},
			Description: string(rune('A' + i)),
		}
	}
	return results, nil
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnalyzeBatchDropsUndecodableItems(t *testing.T) {
	annotator := &stubAnnotator{}
	svc := NewTaggingService(annotator, testLogger())

	items := []BatchItem{
		{MediaID: "a", Data: pngBytes(t, color.White)},
		{MediaID: "broken-1", Data: []byte("not an image")},
		{MediaID: "b", Data: pngBytes(t, color.Black)},
		{MediaID: "broken-2", Data: nil},
		{MediaID: "c", Data: pngBytes(t, color.RGBA{R: 255, A: 255})},
	}

	results, err := svc.AnalyzeBatch(context.Background(), items, 20)
	require.NoError(t, err)

	// Exactly the three valid items, in order, paired by id: the dropped
	// items must not shift annotations onto the wrong record.
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].MediaID)
	assert.Equal(t, "A", results[0].Annotation.Description)
	assert.Equal(t, "b", results[1].MediaID)
	assert.Equal(t, "B", results[1].Annotation.Description)
	assert.Equal(t, "c", results[2].MediaID)
	assert.Equal(t, "C", results[2].Annotation.Description)

	assert.Len(t, annotator.lastBatch, 3, "only valid images are sent to the capability")
}

func TestAnalyzeBatchAllInvalid(t *testing.T) {
	annotator := &stubAnnotator{}
	svc := NewTaggingService(annotator, testLogger())

	items := []BatchItem{
		{MediaID: "x", Data: []byte("junk")},
		{MediaID: "y", Data: nil},
	}

	_, err := svc.AnalyzeBatch(context.Background(), items, 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidImages)
	assert.Equal(t, 0, annotator.calls, "no capability call without valid images")
}

func TestAnalyzeBatchCountMismatchIsBatchError(t *testing.T) {
	annotator := &stubAnnotator{annotations: []models.Annotation{{Description: "only one"}}}
	svc := NewTaggingService(annotator, testLogger())

	items := []BatchItem{
		{MediaID: "a", Data: pngBytes(t, color.White)},
		{MediaID: "b", Data: pngBytes(t, color.Black)},
	}

	_, err := svc.AnalyzeBatch(context.Background(), items, 20)
	assert.Error(t, err)
}

func TestAnalyzeBatchCapsTags(t *testing.T) {
	annotator := &stubAnnotator{annotations: []models.Annotation{
		{Tags: []string{"one", "two", "three", "four"}},
	}}
	svc := NewTaggingService(annotator, testLogger())

	results, err := svc.AnalyzeBatch(context.Background(), []BatchItem{
		{MediaID: "a", Data: pngBytes(t, color.White)},
	}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"one", "two"}, results[0].Annotation.Tags)
}
