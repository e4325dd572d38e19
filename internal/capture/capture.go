// Package capture acquires live camera frames and owns the device lifetime.
package capture

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"
)

// ErrDeviceAccess is returned when the camera or microphone is denied,
// busy or missing.
var ErrDeviceAccess = errors.New("device access error")

// Constraints requested from a source.
type Constraints struct {
	Width     int  `json:"width"`
	Height    int  `json:"height"`
	FrameRate int  `json:"frame_rate"`
	Audio     bool `json:"audio"`
}

// WithDefaults fills zero fields with 1280x720 at 30 fps.
func (c Constraints) WithDefaults() Constraints {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	if c.FrameRate <= 0 {
		c.FrameRate = 30
	}
	return c
}

// Frame is one RGBA video frame. Data must not be modified once published.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Image wraps the frame's pixels without copying.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// StreamHandle is a live stream from a device.
type StreamHandle interface {
	// Latest returns the newest frame, or nil before the first one arrives.
	Latest() *Frame
	Constraints() Constraints
	// Dropped counts frames replaced before anyone read them.
	Dropped() uint64
	// Stop releases the device. Safe to call more than once.
	Stop() error
}

// Source opens streams.
type Source interface {
	RequestStream(ctx context.Context, c Constraints) (StreamHandle, error)
}

// mailbox keeps only the newest frame. Producers never block.
type mailbox struct {
	latest   atomic.Pointer[Frame]
	lastRead atomic.Uint64
	dropped  atomic.Uint64
}

func (m *mailbox) publish(f *Frame) {
	old := m.latest.Swap(f)
	if old != nil && old.Seq > m.lastRead.Load() {
		m.dropped.Add(1)
	}
}

func (m *mailbox) take() *Frame {
	f := m.latest.Load()
	if f != nil {
		m.lastRead.Store(f.Seq)
	}
	return f
}
