package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/models"
)

var commandContext = exec.CommandContext

// FFmpeg pipes raw RGBA frames into ffmpeg and reads VP9/WebM from stdout.
type FFmpeg struct {
	Binary      string
	AudioFormat string // alsa, pulse, avfoundation
	AudioDevice string
	Logger      *zap.Logger
}

func (f *FFmpeg) MimeType() string  { return models.MimeTypeWebM }
func (f *FFmpeg) Extension() string { return ".webm" }

func (f *FFmpeg) args(p Params) []string {
	bitrate := p.BitrateKbps
	if bitrate <= 0 {
		bitrate = 2500
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", strconv.Itoa(p.FrameRate),
		"-i", "pipe:0",
	}
	if p.Audio {
		format, device := f.AudioFormat, f.AudioDevice
		if format == "" {
			format = "alsa"
		}
		if device == "" {
			device = "default"
		}
		args = append(args, "-f", format, "-i", device, "-c:a", "libopus", "-shortest")
	}
	args = append(args,
		"-c:v", "libvpx-vp9",
		"-b:v", strconv.Itoa(bitrate)+"k",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-f", "webm",
		"pipe:1",
	)
	return args
}

func (f *FFmpeg) Open(ctx context.Context, p Params) (Stream, error) {
	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	cmd := commandContext(runCtx, binary, f.args(p)...) //nolint:gosec
	s := &ffmpegStream{
		cmd:    cmd,
		cancel: cancel,
		chunks: make(chan []byte, 64),
		frame:  p.Width * p.Height * 4,
		logger: logger,
	}
	cmd.Stderr = &s.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %w", ErrEncoding, err)
	}
	s.stdin = stdin
	go s.read(stdout, p.chunkSize())
	return s, nil
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	chunks chan []byte
	frame  int
	stderr bytes.Buffer
	logger *zap.Logger

	mu        sync.Mutex
	closed    bool
	aborted   bool
	err       error
	closeOnce sync.Once
}

func (s *ffmpegStream) read(r io.Reader, chunkSize int) {
	defer close(s.chunks)
	for {
		buf := make([]byte, chunkSize)
		n, err := io.ReadAtLeast(r, buf, 1)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(fmt.Errorf("%w: read output: %w", ErrEncoding, err))
			}
			break
		}
	}
	if err := s.cmd.Wait(); err != nil {
		s.mu.Lock()
		aborted := s.aborted
		s.mu.Unlock()
		if !aborted {
			s.setErr(fmt.Errorf("%w: ffmpeg: %w: %s", ErrEncoding, err, strings.TrimSpace(s.stderr.String())))
		}
	}
	s.cancel()
}

func (s *ffmpegStream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *ffmpegStream) WriteFrame(img *image.RGBA) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: write after close", ErrEncoding)
	}
	pix := img.Pix
	if img.Stride*img.Bounds().Dy() != s.frame {
		pix = make([]byte, 0, s.frame)
		for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
			off := img.PixOffset(img.Rect.Min.X, y)
			pix = append(pix, img.Pix[off:off+img.Rect.Dx()*4]...)
		}
	}
	if _, err := s.stdin.Write(pix[:s.frame]); err != nil {
		err = fmt.Errorf("%w: write frame: %w", ErrEncoding, err)
		s.setErr(err)
		return err
	}
	return nil
}

func (s *ffmpegStream) Chunks() <-chan []byte { return s.chunks }

// Close ends stdin; ffmpeg flushes the container and exits.
func (s *ffmpegStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if cerr := s.stdin.Close(); cerr != nil {
			err = fmt.Errorf("%w: close input: %w", ErrEncoding, cerr)
		}
	})
	return err
}

func (s *ffmpegStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ffmpegStream) Abort() {
	s.mu.Lock()
	s.aborted = true
	if s.err == nil {
		s.err = fmt.Errorf("%w: aborted", ErrEncoding)
	}
	s.mu.Unlock()
	s.cancel()
	_ = s.Close()
	s.logger.Debug("encoder aborted")
}
