package worker

import (
	"context"
	"time"

	"github.com/phuslu/log"
	"github.com/pkg/errors"

	"github.com/recall-archive/recall/queue"
	"github.com/recall-archive/recall/store"
)

// TaskConsumer drains re-analysis tasks from the queue. A re-analysis just
// clears the record's annotations; the enrichment loop then re-tags it like
// any other unprocessed record.
type TaskConsumer struct {
	queue  *queue.Queue
	store  store.MediaStore
	logger log.Logger
}

// NewTaskConsumer creates a consumer for the re-analysis queue.
func NewTaskConsumer(q *queue.Queue, mediaStore store.MediaStore, logger log.Logger) *TaskConsumer {
	return &TaskConsumer{queue: q, store: mediaStore, logger: logger}
}

// Run consumes tasks until ctx is cancelled.
func (c *TaskConsumer) Run(ctx context.Context) {
	c.logger.Info().Str("queue", queue.ReanalyzeQueue).Msg("task consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("task consumer stopped")
			return
		default:
		}

		task, err := c.queue.Dequeue(ctx, queue.ReanalyzeQueue, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error().Err(err).Msg("error dequeueing task")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		c.handle(ctx, task)
	}
}

func (c *TaskConsumer) handle(ctx context.Context, task *queue.TaskPayload) {
	c.logger.Info().Str("task_id", task.TaskID).Str("task_type", task.TaskType).Msg("processing task")

	if err := c.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusProcessing); err != nil {
		c.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to update task status")
	}

	result, err := c.process(ctx, task)
	if err != nil {
		c.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("task failed")
		if err := c.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusFailed); err != nil {
			c.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to update task status")
		}
		if err := c.queue.StoreTaskResult(ctx, task.TaskID, map[string]any{"error": err.Error()}); err != nil {
			c.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to store task result")
		}
		return
	}

	if err := c.queue.SetTaskStatus(ctx, task.TaskID, queue.StatusCompleted); err != nil {
		c.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to update task status")
	}
	if err := c.queue.StoreTaskResult(ctx, task.TaskID, result); err != nil {
		c.logger.Warn().Err(err).Str("task_id", task.TaskID).Msg("failed to store task result")
	}
}

func (c *TaskConsumer) process(ctx context.Context, task *queue.TaskPayload) (map[string]any, error) {
	switch task.TaskType {
	case queue.TaskTypeReanalyzeMedia:
		mediaID, ok := task.Data["media_id"].(string)
		if !ok || mediaID == "" {
			return nil, errors.New("task missing media_id")
		}
		if err := c.store.MarkUnprocessed(ctx, mediaID); err != nil {
			return nil, errors.Wrapf(err, "mark %s unprocessed", mediaID)
		}
		return map[string]any{"media_id": mediaID, "requeued": true}, nil
	default:
		return nil, errors.Errorf("unknown task type %q", task.TaskType)
	}
}
