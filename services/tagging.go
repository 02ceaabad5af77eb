package services

import (
	"bytes"
	"context"
	"image"
	"net/http"

	// Decoders for the formats the archive accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/phuslu/log"
	"github.com/pkg/errors"

	"github.com/recall-archive/recall/models"
)

// ErrNoValidImages is returned when every item in a batch failed to decode;
// no capability call is made in that case.
var ErrNoValidImages = errors.New("no valid images")

// BatchItem is one media record's raw image bytes queued for analysis.
type BatchItem struct {
	MediaID string
	Data    []byte
}

// ItemResult pairs an annotation with the record it belongs to. The pairing
// is built while the batch is assembled, so dropped items can never shift
// results onto the wrong record.
type ItemResult struct {
	MediaID    string
	Annotation models.Annotation
}

// TaggingService wraps the vision-analysis capability for batches of
// images.
type TaggingService struct {
	annotator ImageAnnotator
	logger    log.Logger
}

// NewTaggingService creates a TaggingService.
func NewTaggingService(annotator ImageAnnotator, logger log.Logger) *TaggingService {
	return &TaggingService{annotator: annotator, logger: logger}
}

// AnalyzeBatch analyzes up to maxTags tags per image. Items that fail to
// decode are dropped before the capability call; the returned results cover
// exactly the items that were sent. Any capability or parse failure is a
// batch-level error and the whole batch is retried on a later tick.
func (s *TaggingService) AnalyzeBatch(ctx context.Context, items []BatchItem, maxTags int) ([]ItemResult, error) {
	validIDs := make([]string, 0, len(items))
	images := make([]ImageData, 0, len(items))
	for _, item := range items {
		mimeType, ok := s.decodable(item.Data)
		if !ok {
			s.logger.Warn().Str("media_id", item.MediaID).Msg("dropping undecodable image from batch")
			continue
		}
		validIDs = append(validIDs, item.MediaID)
		images = append(images, ImageData{Data: item.Data, MIMEType: mimeType})
	}

	if len(images) == 0 {
		return nil, ErrNoValidImages
	}

	annotations, err := s.annotator.AnnotateImages(ctx, images, maxTags)
	if err != nil {
		return nil, err
	}
	if len(annotations) != len(validIDs) {
		return nil, errors.Errorf("annotator returned %d results for %d images", len(annotations), len(validIDs))
	}

	results := make([]ItemResult, len(validIDs))
	for i, id := range validIDs {
		annotation := annotations[i]
		if maxTags > 0 && len(annotation.Tags) > maxTags {
			annotation.Tags = annotation.Tags[:maxTags]
		}
		results[i] = ItemResult{MediaID: id, Annotation: annotation}
	}
	return results, nil
}

// decodable sniffs the content type and verifies the bytes parse as an
// image header.
func (s *TaggingService) decodable(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", false
	}
	return http.DetectContentType(data), true
}
