package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublishKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, nil)
	user := uuid.New()
	ev, err := New(TypeVideoCreated, user, map[string]int64{"size_bytes": 42})
	if err != nil {
		t.Fatal(err)
	}
	if err := k.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != user.String() {
		t.Errorf("key = %s", msg.Key)
	}
	if msg.Headers[0].Key != "type" || string(msg.Headers[0].Value) != TypeVideoCreated {
		t.Errorf("headers = %+v", msg.Headers)
	}
	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != ev.ID || got.Type != TypeVideoCreated || string(got.Data) != `{"size_bytes":42}` {
		t.Errorf("decoded = %+v", got)
	}
	if err := k.Close(); err != nil || !w.closed {
		t.Errorf("close: %v, closed=%v", err, w.closed)
	}
}

func TestKafkaPublishError(t *testing.T) {
	boom := errors.New("broker down")
	k := newKafka(&fakeWriter{err: boom}, nil)
	ev, _ := New(TypeTierChanged, uuid.New(), nil)
	if err := k.Publish(context.Background(), ev); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

type failing struct{ err error }

func (f failing) Publish(context.Context, Event) error { return f.err }
func (f failing) Close() error                         { return nil }

func TestMultiDeliversToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi{failing{boom}, rec}
	ev, _ := New(TypeVideoDeleted, uuid.New(), nil)
	err := m.Publish(context.Background(), ev)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got := rec.Events(); len(got) != 1 || got[0].ID != ev.ID {
		t.Fatalf("recorded = %+v", got)
	}
}
