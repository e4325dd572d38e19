package encoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/aura-webinar/videocreator/internal/models"
)

// MJPEG encodes each frame as a baseline JPEG and concatenates them.
type MJPEG struct {
	Quality int
}

func (m *MJPEG) MimeType() string  { return models.MimeTypeMJPEG }
func (m *MJPEG) Extension() string { return ".mjpeg" }

func (m *MJPEG) Open(ctx context.Context, p Params) (Stream, error) {
	q := m.Quality
	if q <= 0 || q > 100 {
		q = 80
	}
	s := &mjpegStream{
		ctx:       ctx,
		opts:      &jpeg.Options{Quality: q},
		chunkSize: p.chunkSize(),
		chunks:    make(chan []byte, 64),
	}
	return s, nil
}

type mjpegStream struct {
	ctx       context.Context
	opts      *jpeg.Options
	chunkSize int

	mu     sync.Mutex
	buf    bytes.Buffer
	chunks chan []byte
	closed bool
	err    error
}

func (s *mjpegStream) WriteFrame(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: write after close", ErrEncoding)
	}
	if err := jpeg.Encode(&s.buf, img, s.opts); err != nil {
		s.failLocked(fmt.Errorf("%w: jpeg: %w", ErrEncoding, err))
		return s.err
	}
	if s.buf.Len() >= s.chunkSize {
		return s.emitLocked()
	}
	return nil
}

func (s *mjpegStream) emitLocked() error {
	if s.buf.Len() == 0 {
		return nil
	}
	chunk := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	select {
	case s.chunks <- chunk:
		return nil
	case <-s.ctx.Done():
		s.failLocked(fmt.Errorf("%w: %w", ErrEncoding, s.ctx.Err()))
		return s.err
	}
}

func (s *mjpegStream) failLocked(err error) {
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.chunks)
}

func (s *mjpegStream) Chunks() <-chan []byte { return s.chunks }

func (s *mjpegStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err
	}
	err := s.emitLocked()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return err
}

func (s *mjpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mjpegStream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.failLocked(fmt.Errorf("%w: aborted", ErrEncoding))
}
