package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var commandContext = exec.CommandContext

// FFmpegOption configures an FFmpegSource.
type FFmpegOption func(*FFmpegSource)

// WithBinary overrides the ffmpeg binary.
func WithBinary(binary string) FFmpegOption {
	return func(s *FFmpegSource) {
		if binary != "" {
			s.binary = binary
		}
	}
}

// WithInputFormat overrides the demuxer (v4l2, avfoundation, dshow).
func WithInputFormat(format string) FFmpegOption {
	return func(s *FFmpegSource) {
		if format != "" {
			s.inputFormat = format
		}
	}
}

// WithFirstFrameTimeout bounds how long RequestStream waits for the device.
func WithFirstFrameTimeout(d time.Duration) FFmpegOption {
	return func(s *FFmpegSource) {
		if d > 0 {
			s.firstFrame = d
		}
	}
}

// FFmpegSource reads raw RGBA frames from a camera through an ffmpeg
// subprocess.
type FFmpegSource struct {
	binary      string
	inputFormat string
	device      string
	lockDir     string
	firstFrame  time.Duration
	logger      *zap.Logger
}

func NewFFmpegSource(device, lockDir string, logger *zap.Logger, opts ...FFmpegOption) *FFmpegSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FFmpegSource{
		binary:      "ffmpeg",
		inputFormat: "v4l2",
		device:      device,
		lockDir:     lockDir,
		firstFrame:  5 * time.Second,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FFmpegSource) args(c Constraints) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", s.inputFormat,
		"-framerate", strconv.Itoa(c.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"-i", s.device,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-vf", fmt.Sprintf("scale=%d:%d", c.Width, c.Height),
		"pipe:1",
	}
}

// RequestStream locks the device, starts ffmpeg and waits for the first frame.
// Audio is not read here; the encoder captures it alongside the frames.
func (s *FFmpegSource) RequestStream(ctx context.Context, c Constraints) (StreamHandle, error) {
	c = c.WithDefaults()
	lock := NewDeviceLock(s.lockDir, s.device)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := commandContext(runCtx, s.binary, s.args(c)...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		_ = lock.Release()
		return nil, fmt.Errorf("%w: %w", ErrDeviceAccess, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		_ = lock.Release()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrDeviceAccess, err)
	}

	h := &ffmpegStream{
		c:      c,
		cmd:    cmd,
		cancel: cancel,
		lock:   lock,
		first:  make(chan struct{}),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("device", s.device)),
	}
	go h.read(stdout)

	timer := time.NewTimer(s.firstFrame)
	defer timer.Stop()
	select {
	case <-h.first:
		s.logger.Info("capture started",
			zap.String("device", s.device),
			zap.Int("width", c.Width),
			zap.Int("height", c.Height),
			zap.Int("frame_rate", c.FrameRate))
		return h, nil
	case <-h.done:
		_ = h.Stop()
		return nil, fmt.Errorf("%w: %s", ErrDeviceAccess, strings.TrimSpace(stderr.String()))
	case <-timer.C:
		_ = h.Stop()
		return nil, fmt.Errorf("%w: no frame from %s within %s", ErrDeviceAccess, s.device, s.firstFrame)
	case <-ctx.Done():
		_ = h.Stop()
		return nil, ctx.Err()
	}
}

type ffmpegStream struct {
	c      Constraints
	cmd    *exec.Cmd
	cancel context.CancelFunc
	lock   *DeviceLock
	mb     mailbox
	logger *zap.Logger

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

func (h *ffmpegStream) read(r io.Reader) {
	defer close(h.done)
	size := h.c.Width * h.c.Height * 4
	var seq uint64
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				h.logger.Warn("capture read failed", zap.Error(err))
			}
			return
		}
		seq++
		h.mb.publish(&Frame{Seq: seq, Timestamp: time.Now(), Width: h.c.Width, Height: h.c.Height, Data: buf})
		h.firstOnce.Do(func() { close(h.first) })
	}
}

func (h *ffmpegStream) Latest() *Frame          { return h.mb.take() }
func (h *ffmpegStream) Constraints() Constraints { return h.c }
func (h *ffmpegStream) Dropped() uint64          { return h.mb.dropped.Load() }

// Stop kills ffmpeg, waits for the reader and releases the device lock.
func (h *ffmpegStream) Stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		<-h.done
		_ = h.cmd.Wait()
		if err := h.lock.Release(); err != nil {
			h.stopErr = fmt.Errorf("release device lock: %w", err)
		}
		h.logger.Info("capture stopped", zap.Uint64("dropped_frames", h.Dropped()))
	})
	return h.stopErr
}
