// Package queue is the Redis list that carries orphaned object keys from
// the API to the cleanup worker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// KeyOrphans holds keys of uploaded objects no metadata row points at.
	KeyOrphans = "videocreator:orphans"
	// KeyDeadLetters holds jobs that exhausted their attempts.
	KeyDeadLetters = "videocreator:orphans:dead"

	MaxAttempts  = 3
	RetryBackoff = 10 * time.Second

	// popTimeout bounds BLPOP so shutdown is noticed.
	popTimeout = 5 * time.Second
)

// OrphanJob asks the worker to delete one stored object.
type OrphanJob struct {
	ID        string    `json:"id"`
	ObjectKey string    `json:"object_key"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}

// lists is the subset of the Redis client the queue uses.
type lists interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// Queue is a Redis-backed orphan queue with a dead-letter list.
type Queue struct {
	client lists
	logger *zap.Logger
}

func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	return newQueue(client, logger)
}

func newQueue(client lists, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) push(ctx context.Context, key string, job *OrphanJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode orphan job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// EnqueueOrphan schedules deletion of an object key.
func (q *Queue) EnqueueOrphan(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return errors.New("queue: empty object key")
	}
	job := &OrphanJob{ID: uuid.NewString(), ObjectKey: objectKey, QueuedAt: time.Now().UTC()}
	if err := q.push(ctx, KeyOrphans, job); err != nil {
		return err
	}
	q.logger.Debug("orphan queued", zap.String("job_id", job.ID), zap.String("object_key", objectKey))
	return nil
}

// Dequeue waits briefly for the next job. It returns nil, nil when nothing
// arrived or the entry was unreadable.
func (q *Queue) Dequeue(ctx context.Context) (*OrphanJob, error) {
	res, err := q.client.BLPop(ctx, popTimeout, KeyOrphans).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, err
	case len(res) < 2:
		return nil, nil
	}
	var job OrphanJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil || job.ObjectKey == "" {
		q.logger.Warn("discarding unreadable orphan entry", zap.String("raw", res[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry records cause and requeues the job, or parks it in the dead-letter
// list once MaxAttempts is reached.
func (q *Queue) Retry(ctx context.Context, job *OrphanJob, cause error) error {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	if job.Attempt >= MaxAttempts {
		if err := q.push(ctx, KeyDeadLetters, job); err != nil {
			q.logger.Error("dead-letter push failed", zap.String("job_id", job.ID), zap.Error(err))
			return err
		}
		q.logger.Warn("orphan job dead-lettered",
			zap.String("job_id", job.ID), zap.String("object_key", job.ObjectKey), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, KeyOrphans, job); err != nil {
		return err
	}
	q.logger.Info("orphan job requeued", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// DeadLetters lists parked jobs, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]OrphanJob, error) {
	raws, err := q.client.LRange(ctx, KeyDeadLetters, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	out := make([]OrphanJob, 0, len(raws))
	for _, raw := range raws {
		var job OrphanJob
		if json.Unmarshal([]byte(raw), &job) == nil {
			out = append(out, job)
		}
	}
	return out, nil
}
