package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memLists is an in-memory stand-in for the Redis list commands.
type memLists struct {
	lists map[string][]string
}

func newMemLists() *memLists { return &memLists{lists: map[string][]string{}} }

func (m *memLists) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		switch b := v.(type) {
		case []byte:
			m.lists[key] = append(m.lists[key], string(b))
		case string:
			m.lists[key] = append(m.lists[key], b)
		}
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *memLists) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	for _, k := range keys {
		if l := m.lists[k]; len(l) > 0 {
			m.lists[k] = l[1:]
			return redis.NewStringSliceResult([]string{k, l[0]}, nil)
		}
	}
	return redis.NewStringSliceResult(nil, redis.Nil)
}

func (m *memLists) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(append([]string(nil), m.lists[key]...), nil)
}

func TestEnqueueDequeueOrphan(t *testing.T) {
	q := newQueue(newMemLists(), nil)
	ctx := context.Background()

	if err := q.EnqueueOrphan(ctx, "videos/u/1.webm"); err != nil {
		t.Fatal(err)
	}
	job, err := q.Dequeue(ctx)
	if err != nil || job == nil {
		t.Fatalf("job = %v, err = %v", job, err)
	}
	if job.ObjectKey != "videos/u/1.webm" || job.ID == "" || job.Attempt != 0 {
		t.Fatalf("job = %+v", job)
	}

	job, err = q.Dequeue(ctx)
	if job != nil || err != nil {
		t.Fatalf("empty queue: job = %v, err = %v", job, err)
	}
}

func TestEnqueueRejectsEmptyKey(t *testing.T) {
	if err := newQueue(newMemLists(), nil).EnqueueOrphan(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryDeadLettersAfterMaxAttempts(t *testing.T) {
	m := newMemLists()
	q := newQueue(m, nil)
	ctx := context.Background()
	job := &OrphanJob{ID: "j1", ObjectKey: "k"}
	cause := errors.New("bucket unreachable")

	for i := 1; i < MaxAttempts; i++ {
		if err := q.Retry(ctx, job, cause); err != nil {
			t.Fatal(err)
		}
		if len(m.lists[KeyOrphans]) != i {
			t.Fatalf("attempt %d: orphans = %d", i, len(m.lists[KeyOrphans]))
		}
	}
	if err := q.Retry(ctx, job, cause); err != nil {
		t.Fatal(err)
	}

	dead, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dead) != 1 || dead[0].Attempt != MaxAttempts || dead[0].LastError != cause.Error() {
		t.Fatalf("dead = %+v", dead)
	}
}

func TestDequeueSkipsGarbage(t *testing.T) {
	m := newMemLists()
	m.lists[KeyOrphans] = []string{"not json", `{"id":"x"}`}
	q := newQueue(m, nil)
	for range 2 {
		job, err := q.Dequeue(context.Background())
		if job != nil || err != nil {
			t.Fatalf("job = %v, err = %v", job, err)
		}
	}
}
