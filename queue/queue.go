// Package queue carries re-analysis tasks from the API to the worker
// process over redis, with task status and result keys for polling.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/recall-archive/recall/config"
)

const (
	// ReanalyzeQueue holds tasks that clear a record's annotations so the
	// enrichment worker picks it up again.
	ReanalyzeQueue = "media_reanalyze"

	// TaskTypeReanalyzeMedia re-enriches a single media record.
	TaskTypeReanalyzeMedia = "reanalyze_media"

	statusTTL = 24 * time.Hour
)

// Task statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusUnknown    = "unknown"
)

// TaskPayload is the wire format of a queued task.
type TaskPayload struct {
	TaskID   string         `json:"task_id"`
	TaskType string         `json:"task_type"`
	Data     map[string]any `json:"data"`
	Created  time.Time      `json:"created"`
}

// Queue is a redis-backed task queue.
type Queue struct {
	client *redis.Client
}

// New connects to redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis connection failed")
	}
	return &Queue{client: client}, nil
}

// Close releases the redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue adds a task to queueName and marks it queued. Returns the task id.
func (q *Queue) Enqueue(ctx context.Context, queueName, taskType string, data map[string]any) (string, error) {
	task := TaskPayload{
		TaskID:   uuid.NewString(),
		TaskType: taskType,
		Data:     data,
		Created:  time.Now(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", errors.Wrap(err, "marshal task")
	}
	if err := q.client.RPush(ctx, queueName, payload).Err(); err != nil {
		return "", errors.Wrap(err, "enqueue task")
	}
	if err := q.SetTaskStatus(ctx, task.TaskID, StatusQueued); err != nil {
		return "", err
	}
	return task.TaskID, nil
}

// Dequeue pops the next task, blocking up to timeout. A nil task means the
// timeout elapsed with nothing queued.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*TaskPayload, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "dequeue task")
	}
	if len(result) < 2 {
		return nil, errors.New("invalid result format from redis")
	}

	var task TaskPayload
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, errors.Wrap(err, "unmarshal task")
	}
	return &task, nil
}

// SetTaskStatus updates a task's status key.
func (q *Queue) SetTaskStatus(ctx context.Context, taskID, status string) error {
	err := q.client.Set(ctx, "task:"+taskID+":status", status, statusTTL).Err()
	return errors.Wrap(err, "set task status")
}

// GetTaskStatus returns a task's status, or StatusUnknown if it expired or
// never existed.
func (q *Queue) GetTaskStatus(ctx context.Context, taskID string) (string, error) {
	status, err := q.client.Get(ctx, "task:"+taskID+":status").Result()
	if errors.Is(err, redis.Nil) {
		return StatusUnknown, nil
	}
	if err != nil {
		return "", errors.Wrap(err, "get task status")
	}
	return status, nil
}

// StoreTaskResult stores a completed task's result blob.
func (q *Queue) StoreTaskResult(ctx context.Context, taskID string, result map[string]any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "marshal task result")
	}
	err = q.client.Set(ctx, "task:"+taskID+":result", payload, statusTTL).Err()
	return errors.Wrap(err, "store task result")
}

// GetTaskResult returns a task's result, or nil if absent.
func (q *Queue) GetTaskResult(ctx context.Context, taskID string) (map[string]any, error) {
	payload, err := q.client.Get(ctx, "task:"+taskID+":result").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get task result")
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, errors.Wrap(err, "unmarshal task result")
	}
	return result, nil
}
