// Package worker removes stored objects that ended up without a metadata
// row after a failed save or delete.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/pkg/queue"
)

// Jobs is the queue surface the collector consumes.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.OrphanJob, error)
	Retry(ctx context.Context, job *queue.OrphanJob, cause error) error
}

// ObjectDeleter removes stored objects. Deleting a missing object succeeds.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// OrphanCollector drains the orphan queue.
type OrphanCollector struct {
	jobs    Jobs
	objects ObjectDeleter
	backoff time.Duration
	logger  *zap.Logger

	deleted, failed int
}

func NewOrphanCollector(jobs Jobs, objects ObjectDeleter, logger *zap.Logger) *OrphanCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrphanCollector{jobs: jobs, objects: objects, backoff: queue.RetryBackoff, logger: logger}
}

// Process deletes the job's object.
func (p *OrphanCollector) Process(ctx context.Context, job *queue.OrphanJob) error {
	if job.ObjectKey == "" {
		return fmt.Errorf("orphan job %s has no object key", job.ID)
	}
	if err := p.objects.Delete(ctx, job.ObjectKey); err != nil {
		return fmt.Errorf("delete %s: %w", job.ObjectKey, err)
	}
	p.logger.Info("orphan object deleted",
		zap.String("job_id", job.ID),
		zap.String("object_key", job.ObjectKey),
		zap.Duration("age", time.Since(job.QueuedAt)))
	return nil
}

// Run processes jobs until ctx is cancelled. A failed job is handed back
// to the queue and the loop pauses for the backoff.
func (p *OrphanCollector) Run(ctx context.Context) {
	defer func() {
		p.logger.Info("orphan collector stopped", zap.Int("deleted", p.deleted), zap.Int("failed", p.failed))
	}()
	for ctx.Err() == nil {
		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("orphan dequeue failed", zap.Error(err))
				p.sleep(ctx)
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.failed++
			p.logger.Error("orphan job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if rerr := p.jobs.Retry(ctx, job, err); rerr != nil {
				p.logger.Error("orphan job lost", zap.String("object_key", job.ObjectKey), zap.Error(rerr))
			}
			p.sleep(ctx)
			continue
		}
		p.deleted++
	}
}

func (p *OrphanCollector) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
