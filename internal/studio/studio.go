// Package studio binds a user's session, camera stream, compositor,
// recorder and library into one live studio.
package studio

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/compositor"
	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/recorder"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/pkg/clock"
)

var (
	ErrPendingArtifact = errors.New("studio: previous recording not saved")
	ErrNoPending       = errors.New("studio: no unsaved recording")
	ErrSaving          = errors.New("studio: save in progress")
	ErrClosed          = errors.New("studio: closed")
)

const defaultEventBuffer = 256

// Config wires a Studio.
type Config struct {
	UserID      uuid.UUID
	Gateway     persistence.Gateway
	Source      capture.Source
	Constraints capture.Constraints
	Encoder     encoder.Encoder
	BitrateKbps int
	ChunkSize   int
	Templates   *templates.Registry
	Publisher   events.Publisher
	// Library is shared with the Manager; when nil the studio opens its own.
	Library         *Library
	Clock           clock.Clock
	Countdown       int
	DefaultDuration time.Duration
	MaxBufferBytes  int64
	EventBuffer     int
	Logger          *zap.Logger
}

// Status is a point-in-time view of the studio.
type Status struct {
	State              string           `json:"state"`
	CountdownRemaining int              `json:"countdown_remaining"`
	ElapsedMs          int64            `json:"elapsed_ms"`
	PendingSave        bool             `json:"pending_save"`
	Saving             bool             `json:"saving"`
	Session            session.Snapshot `json:"session"`
	Quota              quota.Stats      `json:"quota"`
	Frames             uint64           `json:"frames"`
	DroppedFrames      uint64           `json:"dropped_frames"`
}

// Studio is one user's live studio. Methods are safe for concurrent use.
type Studio struct {
	cfg     Config
	userID  uuid.UUID
	logger  *zap.Logger
	session *session.Session
	lib     *Library
	stream  capture.StreamHandle
	rec     *recorder.Recorder
	loop    *compositor.Loop

	ctx    context.Context
	cancel context.CancelFunc
	saves  sync.WaitGroup

	mu      sync.Mutex
	pending *recorder.Artifact
	saving  bool
	closing bool

	emitMu sync.Mutex
	events chan Event
	closed bool

	closeOnce sync.Once
}

// Open loads the user's quota, acquires the camera and starts the preview.
func Open(ctx context.Context, cfg Config) (*Studio, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Templates == nil {
		cfg.Templates = templates.NewRegistry()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	cfg.Constraints = cfg.Constraints.WithDefaults()
	logger := cfg.Logger.With(zap.String("user_id", cfg.UserID.String()))

	lib := cfg.Library
	if lib == nil {
		var err error
		lib, err = OpenLibrary(ctx, cfg.UserID, cfg.Gateway, cfg.Publisher, cfg.Logger)
		if err != nil {
			return nil, err
		}
	}

	stream, err := cfg.Source.RequestStream(ctx, cfg.Constraints)
	if err != nil {
		return nil, err
	}
	c := stream.Constraints()

	s := &Studio{
		cfg:     cfg,
		userID:  cfg.UserID,
		logger:  logger,
		session: session.New(),
		lib:     lib,
		stream:  stream,
		events:  make(chan Event, cfg.EventBuffer),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if cfg.Library == nil {
		lib.emit = s.emit
	}

	s.rec = recorder.New(recorder.Config{
		Encoder: cfg.Encoder,
		Params: encoder.Params{
			Width:       c.Width,
			Height:      c.Height,
			FrameRate:   c.FrameRate,
			Audio:       c.Audio,
			BitrateKbps: cfg.BitrateKbps,
			ChunkSize:   cfg.ChunkSize,
		},
		Gate:            lib.Quota(),
		Clock:           cfg.Clock,
		Countdown:       cfg.Countdown,
		DefaultDuration: cfg.DefaultDuration,
		MaxBufferBytes:  cfg.MaxBufferBytes,
		Notify:          s.onNotice,
		Logger:          logger,
	})
	s.loop = compositor.StartLoop(compositor.LoopConfig{
		Compositor: compositor.New(c.Width, c.Height),
		Frames:     stream,
		Session:    s.session,
		Sink:       s.rec,
		Countdown:  s.rec.CountdownRemaining,
		FrameRate:  c.FrameRate,
		Clock:      cfg.Clock,
		Logger:     logger,
	})
	logger.Info("studio opened", zap.Int("width", c.Width), zap.Int("height", c.Height), zap.Int("frame_rate", c.FrameRate))
	return s, nil
}

// UserID is the studio owner.
func (s *Studio) UserID() uuid.UUID { return s.userID }

// Events is the studio's single event channel. It is closed by Close.
// Events are dropped when the reader falls behind.
func (s *Studio) Events() <-chan Event { return s.events }

// Library returns the user's saved videos and quota.
func (s *Studio) Library() *Library { return s.lib }

func (s *Studio) emit(ev Event) {
	ev.UserID = s.userID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("studio event dropped", zap.String("type", string(ev.Type)))
	}
}

// Session editing. Changes apply from the next composed frame.

func (s *Studio) ApplyTemplate(name string) error { return s.cfg.Templates.Apply(s.session, name) }
func (s *Studio) UpdateFilters(f session.Filters)  { s.session.SetFilters(f) }
func (s *Studio) UpdateEffects(e session.Effects)  { s.session.SetEffects(e) }
func (s *Studio) SetOverlays(o []session.TextOverlay) error {
	return s.session.SetOverlays(o)
}
func (s *Studio) SetBackground(bg session.Background) { s.session.SetBackground(bg) }

// ApplyPreset applies the preset's template, if any, then its manual edits.
func (s *Studio) ApplyPreset(p *session.Preset) error {
	if p.Template != "" {
		if err := s.ApplyTemplate(p.Template); err != nil {
			return err
		}
	}
	return p.ApplyTo(s.session)
}

func (s *Studio) Snapshot() session.Snapshot { return s.session.Snapshot() }

// Preview returns a copy of the latest composed frame.
func (s *Studio) Preview() *image.RGBA { return s.loop.Preview() }

func (s *Studio) State() recorder.State { return s.rec.State() }

func (s *Studio) Status() Status {
	s.mu.Lock()
	pending, saving := s.pending != nil, s.saving
	s.mu.Unlock()
	return Status{
		State:              s.rec.State().String(),
		CountdownRemaining: s.rec.CountdownRemaining(),
		ElapsedMs:          s.rec.Elapsed().Milliseconds(),
		PendingSave:        pending,
		Saving:             saving,
		Session:            s.session.Snapshot(),
		Quota:              s.lib.Stats(),
		Frames:             s.loop.Frames(),
		DroppedFrames:      s.stream.Dropped(),
	}
}

// StartRecording begins the countdown for a recording of the given length
// (0 for the default). It is refused while an earlier recording is still
// unsaved, and by the quota before the encoder is touched.
func (s *Studio) StartRecording(duration time.Duration) error {
	s.mu.Lock()
	switch {
	case s.closing:
		s.mu.Unlock()
		return ErrClosed
	case s.saving:
		s.mu.Unlock()
		return ErrSaving
	case s.pending != nil:
		s.mu.Unlock()
		return ErrPendingArtifact
	}
	s.mu.Unlock()

	if duration <= 0 {
		duration = s.cfg.DefaultDuration
		if duration <= 0 {
			duration = recorder.DefaultDuration
		}
	}
	if err := s.lib.settle(s.ctx); err != nil {
		s.logger.Warn("deferred quota releases still failing", zap.Error(err))
	}
	if err := s.lib.Quota().CanRecord(int(math.Ceil(duration.Seconds()))); err != nil {
		s.emit(Event{Type: EventError, Trigger: recorder.EventStart.String(), Error: err.Error()})
		return err
	}
	return s.rec.Start(duration, s.session.Snapshot())
}

func (s *Studio) Pause() error         { return s.rec.Pause() }
func (s *Studio) Resume() error        { return s.rec.Resume() }
func (s *Studio) StopRecording() error { return s.rec.Stop() }

// onNotice runs on the recorder's notification path and must not call
// back into the recorder.
func (s *Studio) onNotice(n recorder.Notice) {
	if n.Event == recorder.EventCountdownTick {
		s.emit(Event{Type: EventCountdown, State: n.State.String(), Remaining: n.Remaining})
		return
	}
	ev := Event{
		Type:      EventStateChanged,
		From:      n.From.String(),
		State:     n.State.String(),
		Trigger:   n.Event.String(),
		Remaining: n.Remaining,
	}
	if n.Err != nil {
		ev.Error = n.Err.Error()
	}
	s.emit(ev)
	if n.Err != nil {
		s.emit(Event{Type: EventError, Trigger: n.Event.String(), Error: n.Err.Error()})
	}

	if n.Artifact == nil {
		return
	}
	s.mu.Lock()
	s.pending = n.Artifact
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.saving = true
	s.saves.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.saves.Done()
		_, _ = s.save(s.ctx, n.Artifact)
	}()
}

// save persists art and settles the pending slot. Caller has set saving.
func (s *Studio) save(ctx context.Context, art *recorder.Artifact) (models.VideoRecord, error) {
	rec, err := s.lib.Save(ctx, art, func(pct int) {
		s.emit(Event{Type: EventUploadProgress, Percent: pct})
	})

	s.mu.Lock()
	s.saving = false
	if err == nil && s.pending == art {
		s.pending = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("save failed, recording kept for retry", zap.Int("size_bytes", len(art.Data)), zap.Error(err))
		s.emit(Event{Type: EventError, Trigger: "save", Error: err.Error()})
		return models.VideoRecord{}, err
	}
	s.logger.Info("recording saved", zap.String("video_id", rec.ID.String()), zap.Int64("size_bytes", rec.SizeBytes))
	s.emit(Event{Type: EventVideoSaved, Video: &rec, VideoID: rec.ID})
	return rec, nil
}

// RetrySave runs the save pipeline again for the unsaved recording.
func (s *Studio) RetrySave(ctx context.Context) (models.VideoRecord, error) {
	s.mu.Lock()
	switch {
	case s.saving:
		s.mu.Unlock()
		return models.VideoRecord{}, ErrSaving
	case s.pending == nil:
		s.mu.Unlock()
		return models.VideoRecord{}, ErrNoPending
	}
	art := s.pending
	s.saving = true
	s.mu.Unlock()
	return s.save(ctx, art)
}

// DiscardPending drops the unsaved recording.
func (s *Studio) DiscardPending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.saving:
		return ErrSaving
	case s.pending == nil:
		return ErrNoPending
	}
	s.logger.Info("unsaved recording discarded", zap.Int("size_bytes", len(s.pending.Data)))
	s.pending = nil
	return nil
}

// PendingSave reports whether a finished recording awaits saving.
func (s *Studio) PendingSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Library passthroughs.

func (s *Studio) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	return s.lib.DeleteVideo(ctx, id)
}

func (s *Studio) ListVideos(ctx context.Context) ([]models.VideoRecord, error) {
	return s.lib.ListVideos(ctx)
}

func (s *Studio) Stats() quota.Stats { return s.lib.Stats() }

func (s *Studio) UpgradeTier(ctx context.Context, name quota.TierName) (models.UserQuota, error) {
	return s.lib.UpgradeTier(ctx, name)
}

// Close discards any recording in progress, stops the preview and
// releases the camera. In-flight saves are cancelled. Close always
// succeeds and may be called more than once.
func (s *Studio) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		s.rec.Dispose()
		s.loop.Stop()
		if err := s.stream.Stop(); err != nil {
			s.logger.Warn("stream stop failed", zap.Error(err))
		}
		s.cancel()
		s.saves.Wait()

		s.emitMu.Lock()
		s.closed = true
		close(s.events)
		s.emitMu.Unlock()
		s.logger.Info("studio closed")
	})
}
