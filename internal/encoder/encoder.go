// Package encoder turns composed frames into a stream of encoded chunks.
package encoder

import (
	"context"
	"errors"
	"image"
)

// ErrEncoding marks a failure inside the encoder.
var ErrEncoding = errors.New("encoding error")

// DefaultChunkSize is how many encoded bytes are grouped into one chunk.
const DefaultChunkSize = 256 * 1024

// Params configures one encoding session.
type Params struct {
	Width       int
	Height      int
	FrameRate   int
	Audio       bool
	BitrateKbps int
	ChunkSize   int
}

func (p Params) chunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

// Encoder opens encoding streams.
type Encoder interface {
	Open(ctx context.Context, p Params) (Stream, error)
	MimeType() string
	Extension() string
}

// Stream accepts frames and emits chunks in order.
type Stream interface {
	// WriteFrame encodes one frame. The stream does not retain img.
	WriteFrame(img *image.RGBA) error
	// Chunks is closed once the stream has drained or failed.
	Chunks() <-chan []byte
	// Close ends input. Remaining chunks are still delivered.
	Close() error
	// Err reports the terminal error once Chunks is closed.
	Err() error
	// Abort stops encoding immediately and discards pending output.
	Abort()
}
