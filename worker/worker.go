// Package worker runs the background enrichment loop: it periodically
// pulls unprocessed media records, sends them to the vision capability in
// bounded batches and commits the annotations back to the store.
package worker

import (
	"context"
	"os"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/services"
	"github.com/recall-archive/recall/store"
)

// EnrichmentWorker is the scheduling loop around the tagging service.
// Records it fails to enrich stay processed=false and are retried on a
// later tick (at-least-once); a per-record attempt cap keeps permanently
// malformed records from churning forever.
type EnrichmentWorker struct {
	store   store.MediaStore
	tagging *services.TaggingService
	cfg     config.WorkerConfig
	logger  log.Logger

	// readFile is swappable in tests.
	readFile func(string) ([]byte, error)
}

// NewEnrichmentWorker creates a worker. It does not start the loop.
func NewEnrichmentWorker(mediaStore store.MediaStore, tagging *services.TaggingService, cfg config.WorkerConfig, logger log.Logger) *EnrichmentWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = 20
	}
	return &EnrichmentWorker{
		store:    mediaStore,
		tagging:  tagging,
		cfg:      cfg,
		logger:   logger,
		readFile: os.ReadFile,
	}
}

// Run loops until ctx is cancelled. The inter-tick sleep selects on
// ctx.Done so shutdown is prompt; an in-flight capability call may be
// abandoned, in which case the batch simply stays unprocessed.
func (w *EnrichmentWorker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.cfg.Interval).Int("batch_size", w.cfg.BatchSize).
		Msg("enrichment worker started")

	timer := time.NewTimer(w.cfg.Interval)
	defer timer.Stop()

	for {
		if err := w.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("enrichment tick failed")
		}

		timer.Reset(w.cfg.Interval)
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("enrichment worker stopped")
			return
		case <-timer.C:
		}
	}
}

// Tick runs one fetch-analyze-commit cycle.
func (w *EnrichmentWorker) Tick(ctx context.Context) error {
	records, err := w.store.ListUnprocessed(ctx, w.cfg.BatchSize)
	if err != nil {
		return errors.Wrap(err, "fetch unprocessed records")
	}
	if len(records) == 0 {
		w.logger.Debug().Msg("no unprocessed media, skipping tick")
		return nil
	}

	batch := make([]services.BatchItem, 0, len(records))
	batchIDs := make([]string, 0, len(records))
	for _, record := range records {
		data, err := w.readFile(record.FilePath)
		if err != nil {
			w.logger.Warn().Err(err).Str("media_id", record.ID).Str("path", record.FilePath).
				Msg("cannot read media file, skipping record this tick")
			continue
		}
		batch = append(batch, services.BatchItem{MediaID: record.ID, Data: data})
		batchIDs = append(batchIDs, record.ID)
	}
	if len(batch) == 0 {
		return nil
	}

	results, err := w.tagging.AnalyzeBatch(ctx, batch, w.cfg.MaxTags)
	if err != nil {
		// The whole batch stays unprocessed and is retried next tick.
		if attemptErr := w.store.IncrementAttempts(ctx, batchIDs); attemptErr != nil {
			w.logger.Error().Err(attemptErr).Msg("failed to record enrichment attempts")
		}
		return errors.Wrap(err, "analyze batch")
	}

	committed := 0
	analyzed := make(map[string]bool, len(results))
	for _, result := range results {
		analyzed[result.MediaID] = true
		err := w.store.UpdateAnnotations(ctx, result.MediaID, result.Annotation.Tags, result.Annotation.Description)
		if err != nil {
			// Partial success: the failed record stays unprocessed, the
			// rest of the batch still commits.
			w.logger.Error().Err(err).Str("media_id", result.MediaID).Msg("failed to commit annotations")
			continue
		}
		committed++
	}

	// Records the tagging service dropped as undecodable count against the
	// attempt cap so they eventually stop being fetched.
	var dropped []string
	for _, id := range batchIDs {
		if !analyzed[id] {
			dropped = append(dropped, id)
		}
	}
	if len(dropped) > 0 {
		if err := w.store.IncrementAttempts(ctx, dropped); err != nil {
			w.logger.Error().Err(err).Msg("failed to record attempts for dropped records")
		}
	}

	w.logger.Info().Int("fetched", len(records)).Int("analyzed", len(results)).Int("committed", committed).
		Msg("enrichment tick completed")
	return nil
}
