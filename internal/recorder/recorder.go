package recorder

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/pkg/clock"
)

const (
	DefaultDuration  = 30 * time.Second
	DefaultCountdown = 3
	countdownTick    = time.Second
)

// Gate is the quota pre-check consulted before a recording starts.
type Gate interface {
	CanRecord(plannedDurationSeconds int) error
}

// Artifact is a finished recording handed to the caller for persistence.
type Artifact struct {
	Data         []byte
	Duration     time.Duration
	MimeType     string
	Extension    string
	TemplateName string
	Filters      session.Filters
	Effects      session.Effects
	CreatedAt    time.Time
}

// Notice reports a state change or countdown tick. Artifact is set on the
// transition out of Finalizing; Err is set on failures and denials.
type Notice struct {
	Event     Event
	From      State
	State     State
	Remaining int
	Artifact  *Artifact
	Err       error
}

// Config wires a Recorder.
type Config struct {
	Encoder         encoder.Encoder
	Params          encoder.Params
	Gate            Gate
	Clock           clock.Clock
	// Countdown is the number of ticks before capture: 0 selects
	// DefaultCountdown, a negative value disables it.
	Countdown       int
	DefaultDuration time.Duration
	// MaxBufferBytes caps the in-memory buffer; 0 means unbounded.
	MaxBufferBytes int64
	// Notify must not call back into the Recorder.
	Notify func(Notice)
	Logger *zap.Logger
}

// Recorder is the recording state machine. All methods are safe for
// concurrent use; Offer never blocks.
type Recorder struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	run     *run
	nextID  uint64
	pending []Notice

	notifyMu sync.Mutex
	sink     atomic.Pointer[frameSink]
	pool     sync.Pool
}

type run struct {
	id        uint64
	duration  time.Duration
	snap      session.Snapshot
	remaining int

	countdown *clock.Timer
	deadline  *clock.Timer
	resumedAt time.Time
	elapsed   time.Duration
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	stream encoder.Stream
	sink   *frameSink
	buf    *Buffer
	done   chan struct{}
}

func New(cfg Config) *Recorder {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	} else if cfg.Countdown == 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := &Recorder{cfg: cfg, logger: cfg.Logger}
	w, h := cfg.Params.Width, cfg.Params.Height
	r.pool.New = func() any { return image.NewRGBA(image.Rect(0, 0, w, h)) }
	return r
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CountdownRemaining returns the remaining countdown ticks, or 0 outside
// CountingDown.
func (r *Recorder) CountdownRemaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != CountingDown || r.run == nil {
		return 0
	}
	return r.run.remaining
}

// Elapsed returns the recorded, unpaused time of the current run.
func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return 0
	}
	e := r.run.elapsed
	if r.state == Recording {
		e += r.cfg.Clock.Now().Sub(r.run.resumedAt)
	}
	return e
}

// Start checks the gate and begins the countdown. A zero duration uses the
// configured default. The snapshot is recorded with the artifact.
func (r *Recorder) Start(duration time.Duration, snap session.Snapshot) error {
	if duration <= 0 {
		duration = r.cfg.DefaultDuration
	}
	r.mu.Lock()
	defer r.flush()

	if _, err := Transition(r.state, EventStart); err != nil {
		return err
	}
	if r.cfg.Gate != nil {
		secs := int(math.Ceil(duration.Seconds()))
		if err := r.cfg.Gate.CanRecord(secs); err != nil {
			r.fire(EventStartDenied, Notice{Err: err})
			return err
		}
	}

	r.nextID++
	r.run = &run{
		id:        r.nextID,
		duration:  duration,
		snap:      snap,
		remaining: r.cfg.Countdown,
		createdAt: r.cfg.Clock.Now().UTC(),
	}
	r.fire(EventStart, Notice{Remaining: r.run.remaining})
	if r.run.remaining == 0 {
		r.beginLocked()
		return nil
	}
	r.scheduleTickLocked()
	return nil
}

func (r *Recorder) scheduleTickLocked() {
	id := r.run.id
	r.run.countdown = r.cfg.Clock.AfterFunc(countdownTick, func() { r.tick(id) })
}

func (r *Recorder) tick(id uint64) {
	r.mu.Lock()
	defer r.flush()
	if r.run == nil || r.run.id != id || r.state != CountingDown {
		return
	}
	r.run.remaining--
	if r.run.remaining > 0 {
		r.pending = append(r.pending, Notice{Event: EventCountdownTick, From: CountingDown, State: CountingDown, Remaining: r.run.remaining})
		r.scheduleTickLocked()
		return
	}
	r.beginLocked()
}

// beginLocked opens the encoder and enters Recording.
func (r *Recorder) beginLocked() {
	run := r.run
	run.ctx, run.cancel = context.WithCancel(context.Background())
	stream, err := r.cfg.Encoder.Open(run.ctx, r.cfg.Params)
	if err != nil {
		run.cancel()
		r.failLocked(EventEncoderFailed, fmt.Errorf("open encoder: %w", err))
		return
	}
	now := r.cfg.Clock.Now()
	run.stream = stream
	run.buf = NewBuffer(now, run.duration, r.cfg.MaxBufferBytes)
	run.sink = newFrameSink(4)
	run.done = make(chan struct{})
	run.resumedAt = now

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.writeFrames(run) }()
	go func() { defer wg.Done(); r.collectChunks(run) }()
	go func() { wg.Wait(); close(run.done) }()

	r.sink.Store(run.sink)
	r.armDeadlineLocked(run.duration)
	r.fire(EventCountdownElapsed, Notice{})
	r.logger.Info("recording started", zap.Duration("duration", run.duration))
}

func (r *Recorder) armDeadlineLocked(left time.Duration) {
	id := r.run.id
	r.run.deadline = r.cfg.Clock.AfterFunc(left, func() { r.durationElapsed(id) })
}

func (r *Recorder) durationElapsed(id uint64) {
	r.mu.Lock()
	defer r.flush()
	if r.run == nil || r.run.id != id || r.state != Recording {
		return
	}
	r.stopRecordingLocked(EventDurationElapsed)
}

// Pause stops frame intake and the duration timer.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.flush()
	if _, err := Transition(r.state, EventPause); err != nil {
		return err
	}
	run := r.run
	r.sink.Store(nil)
	run.deadline.Stop()
	run.elapsed += r.cfg.Clock.Now().Sub(run.resumedAt)
	r.fire(EventPause, Notice{})
	return nil
}

// Resume restarts frame intake and the remaining duration.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.flush()
	if _, err := Transition(r.state, EventResume); err != nil {
		return err
	}
	run := r.run
	run.resumedAt = r.cfg.Clock.Now()
	r.armDeadlineLocked(max(run.duration-run.elapsed, 0))
	r.sink.Store(run.sink)
	r.fire(EventResume, Notice{})
	return nil
}

// Stop cancels a countdown or ends the recording and drains the encoder.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.flush()
	if _, err := Transition(r.state, EventStop); err != nil {
		return err
	}
	if r.state == CountingDown {
		r.run.countdown.Stop()
		r.run = nil
		r.fire(EventStop, Notice{})
		return nil
	}
	r.stopRecordingLocked(EventStop)
	return nil
}

func (r *Recorder) stopRecordingLocked(ev Event) {
	run := r.run
	if r.state == Recording {
		run.elapsed += r.cfg.Clock.Now().Sub(run.resumedAt)
	}
	run.deadline.Stop()
	r.sink.Store(nil)
	run.sink.close()
	r.fire(ev, Notice{})
}

// drained runs once the encoder has emitted its last chunk.
func (r *Recorder) drained(run *run, collectErr error) {
	r.mu.Lock()
	defer r.flush()
	if r.run != run {
		return
	}
	err := collectErr
	if err == nil {
		err = run.stream.Err()
	}
	if err != nil || r.state != Stopping {
		if err == nil {
			err = fmt.Errorf("%w: encoder ended unexpectedly", encoder.ErrEncoding)
		}
		r.failLocked(EventEncoderFailed, err)
		return
	}

	r.fire(EventEncoderDrained, Notice{})
	data, err := run.buf.Concat()
	if err != nil {
		r.failLocked(EventFinalizeFailed, err)
		return
	}
	art := &Artifact{
		Data:         data,
		Duration:     run.elapsed,
		MimeType:     r.cfg.Encoder.MimeType(),
		Extension:    r.cfg.Encoder.Extension(),
		TemplateName: run.snap.TemplateName(),
		Filters:      run.snap.Filters,
		Effects:      run.snap.Effects,
		CreatedAt:    run.createdAt,
	}
	run.cancel()
	r.run = nil
	r.fire(EventFinalized, Notice{Artifact: art})
	r.logger.Info("recording finalized",
		zap.Int("size_bytes", len(data)),
		zap.Int64("duration_ms", art.Duration.Milliseconds()))
}

// failLocked discards the run and passes through Error back to Idle.
func (r *Recorder) failLocked(ev Event, err error) {
	r.teardownLocked()
	r.fire(ev, Notice{Err: err})
	r.fire(EventReset, Notice{})
	r.logger.Warn("recording failed", zap.String("event", ev.String()), zap.Error(err))
}

// teardownLocked releases everything the current run holds.
func (r *Recorder) teardownLocked() *run {
	run := r.run
	if run == nil {
		return nil
	}
	r.sink.Store(nil)
	if run.countdown != nil {
		run.countdown.Stop()
	}
	if run.deadline != nil {
		run.deadline.Stop()
	}
	if run.sink != nil {
		run.sink.close()
	}
	if run.cancel != nil {
		run.cancel()
	}
	if run.stream != nil {
		run.stream.Abort()
	}
	if run.buf != nil {
		run.buf.Discard()
	}
	r.run = nil
	return run
}

// Dispose discards any run and returns to Idle. It never fails and may be
// called any number of times.
func (r *Recorder) Dispose() {
	r.mu.Lock()
	run := r.teardownLocked()
	if r.state != Idle {
		r.fire(EventDispose, Notice{})
	}
	r.flush()
	if run != nil && run.done != nil {
		<-run.done
	}
}

// fire applies ev and queues a notice. Caller holds r.mu.
func (r *Recorder) fire(ev Event, n Notice) {
	to, err := Transition(r.state, ev)
	if err != nil {
		r.logger.Error("unexpected transition", zap.Error(err))
		return
	}
	n.Event, n.From, n.State = ev, r.state, to
	r.state = to
	r.pending = append(r.pending, n)
}

// flush releases r.mu and delivers queued notices in order.
func (r *Recorder) flush() {
	pending := r.pending
	r.pending = nil
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()
	if r.cfg.Notify == nil {
		return
	}
	for _, n := range pending {
		r.cfg.Notify(n)
	}
}

// Offer hands a composed frame to the active recording. It copies img and
// returns immediately; frames are dropped when the encoder lags.
func (r *Recorder) Offer(img *image.RGBA) {
	sink := r.sink.Load()
	if sink == nil {
		return
	}
	cp, _ := r.pool.Get().(*image.RGBA)
	if cp == nil || cp.Rect != img.Rect {
		cp = image.NewRGBA(img.Rect)
	}
	copy(cp.Pix, img.Pix)
	if !sink.offer(cp) {
		r.pool.Put(cp)
	}
}

func (r *Recorder) writeFrames(run *run) {
	failed := false
	for img := range run.sink.frames {
		if !failed {
			if err := run.stream.WriteFrame(img); err != nil {
				failed = true
				r.logger.Warn("encoder write failed", zap.Error(err))
				run.stream.Abort()
			}
		}
		r.pool.Put(img)
	}
	if !failed {
		if err := run.stream.Close(); err != nil {
			r.logger.Warn("encoder close failed", zap.Error(err))
		}
	}
}

func (r *Recorder) collectChunks(run *run) {
	var collectErr error
	for chunk := range run.stream.Chunks() {
		if collectErr != nil {
			continue
		}
		if err := run.buf.Append(chunk); err != nil {
			collectErr = err
			run.cancel()
			run.stream.Abort()
		}
	}
	r.drained(run, collectErr)
}

// frameSink is the bounded hand-off between Offer and the frame writer.
type frameSink struct {
	mu      sync.RWMutex
	frames  chan *image.RGBA
	closed  bool
	dropped atomic.Uint64
}

func newFrameSink(capacity int) *frameSink {
	return &frameSink{frames: make(chan *image.RGBA, capacity)}
}

func (s *frameSink) offer(img *image.RGBA) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- img:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *frameSink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}
