package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/models"
	"github.com/recall-archive/recall/store"
)

// ConversationalContextCache builds a bounded textual digest of the
// collection for the chat surface and serves it until a refresh is
// requested. Staleness between the true data and the digest is accepted;
// the only mutation is full replacement.
type ConversationalContextCache struct {
	store  store.MediaStore
	cfg    config.ContextConfig
	logger log.Logger

	mu         sync.RWMutex
	cached     string
	generation uint64
}

// NewConversationalContextCache creates an empty cache.
func NewConversationalContextCache(mediaStore store.MediaStore, cfg config.ContextConfig, logger log.Logger) *ConversationalContextCache {
	return &ConversationalContextCache{store: mediaStore, cfg: cfg, logger: logger}
}

// GetContext returns the cached digest, rebuilding it on first use or when
// refresh is true. The rebuild queries the store outside the lock; the
// result is swapped in wholesale.
func (c *ConversationalContextCache) GetContext(ctx context.Context, refresh bool) (string, error) {
	if !refresh {
		c.mu.RLock()
		cached := c.cached
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}
	}

	digest, err := c.build(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cached = digest
	c.generation++
	generation := c.generation
	c.mu.Unlock()

	c.logger.Info().Uint64("generation", generation).Int("bytes", len(digest)).Msg("conversation context rebuilt")
	return digest, nil
}

// Generation returns the current cache generation, mostly for tests and
// status reporting.
func (c *ConversationalContextCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

func (c *ConversationalContextCache) build(ctx context.Context) (string, error) {
	images, err := c.store.ListRecent(ctx, models.MediaTypeImage, c.cfg.ImageLimit)
	if err != nil {
		return "", err
	}
	videos, err := c.store.ListRecent(ctx, models.MediaTypeVideo, c.cfg.VideoLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("=== PHOTO & VIDEO COLLECTION ASSISTANT ===\n\n")
	b.WriteString("You are an AI assistant with complete access to a user's photo and video collection.\n")
	b.WriteString("You have AI-generated descriptions, detected objects, location data, audio\n")
	b.WriteString("transcriptions and timestamps for the collection. Use all of it to answer queries.\n\n")

	c.writeOverview(&b, images, videos)

	b.WriteString("DETAILED MEDIA DATA:\n\n")
	c.writeDetails(ctx, &b, "IMAGE", images)
	c.writeDetails(ctx, &b, "VIDEO", videos)

	b.WriteString("\nAnswer queries using descriptions, tags, GPS coordinates, timestamps and audio\n")
	b.WriteString("transcripts. Reference specific image/video numbers. Be conversational and helpful.\n")
	return b.String(), nil
}

func (c *ConversationalContextCache) writeOverview(b *strings.Builder, images, videos []models.MediaRecord) {
	stats := func(records []models.MediaRecord) (processed, located, withAudio int) {
		for _, record := range records {
			if record.Processed {
				processed++
			}
			if record.HasLocation() {
				located++
			}
			if record.AudioID != nil {
				withAudio++
			}
		}
		return
	}
	imgProcessed, imgLocated, imgAudio := stats(images)
	vidProcessed, vidLocated, vidAudio := stats(videos)

	b.WriteString("COLLECTION OVERVIEW:\n")
	fmt.Fprintf(b, "- Total Images: %d\n", len(images))
	fmt.Fprintf(b, "- Total Videos: %d\n", len(videos))
	fmt.Fprintf(b, "- AI-Analyzed Images: %d\n", imgProcessed)
	fmt.Fprintf(b, "- AI-Analyzed Videos: %d\n", vidProcessed)
	fmt.Fprintf(b, "- Images with GPS Location: %d\n", imgLocated)
	fmt.Fprintf(b, "- Videos with GPS Location: %d\n", vidLocated)
	fmt.Fprintf(b, "- Images with Audio: %d\n", imgAudio)
	fmt.Fprintf(b, "- Videos with Audio: %d\n\n", vidAudio)
}

// writeDetails renders every other record to keep the digest inside the
// prompt budget.
func (c *ConversationalContextCache) writeDetails(ctx context.Context, b *strings.Builder, label string, records []models.MediaRecord) {
	for i, record := range records {
		if i%2 != 0 {
			continue
		}
		fmt.Fprintf(b, "%s #%d:\n", label, i+1)
		fmt.Fprintf(b, "ID: %s\n", record.ID)
		fmt.Fprintf(b, "TIMESTAMP: %s\n", record.CreatedAt.Format("2006-01-02 15:04:05"))
		if record.Description != nil && *record.Description != "" {
			fmt.Fprintf(b, "DESCRIPTION: %s\n", *record.Description)
		} else {
			b.WriteString("DESCRIPTION: [Not yet analyzed by AI]\n")
		}
		if len(record.Tags) > 0 {
			fmt.Fprintf(b, "TAGS: %s\n", strings.Join(record.Tags, ", "))
		}
		if record.HasLocation() {
			fmt.Fprintf(b, "GPS: %f, %f\n", *record.Latitude, *record.Longitude)
		}
		if record.AudioID != nil {
			if transcript := c.lookupTranscript(ctx, *record.AudioID); transcript != "" {
				fmt.Fprintf(b, "AUDIO: %q\n", transcript)
			}
		}
		if record.Processed {
			b.WriteString("STATUS: Fully Analyzed\n")
		} else {
			b.WriteString("STATUS: Pending AI Analysis\n")
		}
		b.WriteString("\n")
	}
}

func (c *ConversationalContextCache) lookupTranscript(ctx context.Context, audioID string) string {
	audio, err := c.store.GetAudio(ctx, audioID)
	if err != nil {
		c.logger.Warn().Err(err).Str("audio_id", audioID).Msg("failed to load audio for context digest")
		return ""
	}
	if audio.Transcription == nil {
		return ""
	}
	return strings.TrimSpace(*audio.Transcription)
}
