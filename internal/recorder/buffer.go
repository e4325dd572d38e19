package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrEmptyRecording = errors.New("recorder: no data recorded")
	ErrBufferFull     = errors.New("recorder: buffer limit reached")
)

// Buffer keeps encoded chunks in arrival order.
type Buffer struct {
	mu        sync.Mutex
	chunks    [][]byte
	size      int64
	limit     int64
	startedAt time.Time
	target    time.Duration
}

// NewBuffer returns an empty buffer. limit <= 0 means unbounded.
func NewBuffer(startedAt time.Time, target time.Duration, limit int64) *Buffer {
	return &Buffer{startedAt: startedAt, target: target, limit: limit}
}

func (b *Buffer) Append(chunk []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 && b.size+int64(len(chunk)) > b.limit {
		return fmt.Errorf("%w: %d bytes", ErrBufferFull, b.limit)
	}
	b.chunks = append(b.chunks, chunk)
	b.size += int64(len(chunk))
	return nil
}

func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Concat joins the chunks and empties the buffer.
func (b *Buffer) Concat() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.resetLocked()
	if b.size == 0 {
		return nil, ErrEmptyRecording
	}
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out, nil
}

// Discard drops all chunks.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.resetLocked()
	b.mu.Unlock()
}

func (b *Buffer) resetLocked() {
	b.chunks = nil
	b.size = 0
}
