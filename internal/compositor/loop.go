package compositor

import (
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/pkg/clock"
)

// FrameSource yields the newest camera frame, or nil.
type FrameSource interface {
	Latest() *capture.Frame
}

// SessionSource yields the settings for the next frame.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Sink receives composed frames. Offer must not block and must not keep
// img after returning.
type Sink interface {
	Offer(img *image.RGBA)
}

// CountdownFunc reports the countdown value to draw, 0 for none.
type CountdownFunc func() int

// LoopConfig wires a render loop.
type LoopConfig struct {
	Compositor *Compositor
	Frames     FrameSource
	Session    SessionSource
	Sink       Sink
	Countdown  CountdownFunc
	FrameRate  int
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Loop renders at a fixed rate until stopped. A tick that finds no new
// camera frame re-renders the last one so animations keep moving.
type Loop struct {
	cfg    LoopConfig
	ticker *clock.Ticker

	mu      sync.Mutex
	preview *image.RGBA
	frames  uint64
	lastSeq uint64
	stale   uint64

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// StartLoop begins rendering immediately.
func StartLoop(cfg LoopConfig) *Loop {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	l := &Loop{
		cfg:     cfg,
		preview: image.NewRGBA(cfg.Compositor.Bounds()),
		done:    make(chan struct{}),
	}
	l.ticker = cfg.Clock.NewTicker(time.Second / time.Duration(cfg.FrameRate))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C:
			l.Tick()
		}
	}
}

// Tick renders one frame. The loop calls it on every ticker fire; tests
// may call it directly.
func (l *Loop) Tick() {
	var src *image.RGBA
	if f := l.cfg.Frames.Latest(); f != nil {
		src = f.Image()
		l.mu.Lock()
		if f.Seq == l.lastSeq {
			l.stale++
		}
		l.lastSeq = f.Seq
		l.mu.Unlock()
	}
	countdown := 0
	if l.cfg.Countdown != nil {
		countdown = l.cfg.Countdown()
	}
	out := l.cfg.Compositor.Render(src, l.cfg.Session.Snapshot(), l.cfg.Clock.Now(), countdown)
	if l.cfg.Sink != nil {
		l.cfg.Sink.Offer(out)
	}

	l.mu.Lock()
	copy(l.preview.Pix, out.Pix)
	l.frames++
	l.mu.Unlock()
}

// Preview returns a copy of the most recent output frame.
func (l *Loop) Preview() *image.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()
	img := image.NewRGBA(l.preview.Rect)
	copy(img.Pix, l.preview.Pix)
	return img
}

// Frames counts rendered frames.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Stop ends the loop and waits for an in-flight frame. Safe to call more
// than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.ticker.Stop()
		close(l.done)
		l.wg.Wait()
		l.mu.Lock()
		l.cfg.Logger.Debug("render loop stopped",
			zap.Uint64("frames", l.frames),
			zap.Uint64("repeated_frames", l.stale))
		l.mu.Unlock()
	})
}
