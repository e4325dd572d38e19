package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aura-webinar/videocreator/pkg/queue"
)

type scriptedJobs struct {
	mu      sync.Mutex
	pending []*queue.OrphanJob
	retried []*queue.OrphanJob
	causes  []error
	drained chan struct{}
}

func (s *scriptedJobs) Dequeue(ctx context.Context) (*queue.OrphanJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		select {
		case <-s.drained:
		default:
			close(s.drained)
		}
		return nil, nil
	}
	j := s.pending[0]
	s.pending = s.pending[1:]
	return j, nil
}

func (s *scriptedJobs) Retry(ctx context.Context, job *queue.OrphanJob, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Attempt++
	s.retried = append(s.retried, job)
	s.causes = append(s.causes, cause)
	return nil
}

type deleter struct {
	mu      sync.Mutex
	deleted []string
	fail    map[string]bool
}

func (d *deleter) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[key] {
		return errors.New("unavailable")
	}
	d.deleted = append(d.deleted, key)
	return nil
}

func orphan(id, key string) *queue.OrphanJob {
	return &queue.OrphanJob{ID: id, ObjectKey: key, QueuedAt: time.Now()}
}

func TestProcessDeletesObject(t *testing.T) {
	d := &deleter{}
	c := NewOrphanCollector(nil, d, nil)
	if err := c.Process(context.Background(), orphan("1", "videos/u/1.webm")); err != nil {
		t.Fatal(err)
	}
	if len(d.deleted) != 1 || d.deleted[0] != "videos/u/1.webm" {
		t.Fatalf("deleted = %v", d.deleted)
	}
}

func TestProcessRejectsEmptyKey(t *testing.T) {
	c := NewOrphanCollector(nil, &deleter{}, nil)
	if err := c.Process(context.Background(), orphan("3", "")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunRetriesFailures(t *testing.T) {
	jobs := &scriptedJobs{
		pending: []*queue.OrphanJob{orphan("ok", "a"), orphan("bad", "b")},
		drained: make(chan struct{}),
	}
	d := &deleter{fail: map[string]bool{"b": true}}
	c := NewOrphanCollector(jobs, d, nil)
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	<-jobs.drained
	cancel()
	<-done

	if len(d.deleted) != 1 || d.deleted[0] != "a" {
		t.Fatalf("deleted = %v", d.deleted)
	}
	if len(jobs.retried) != 1 || jobs.retried[0].ID != "bad" || jobs.causes[0] == nil {
		t.Fatalf("retried = %v causes = %v", jobs.retried, jobs.causes)
	}
	if c.deleted != 1 || c.failed != 1 {
		t.Fatalf("counters = %d/%d", c.deleted, c.failed)
	}
}
