package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/events"
	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/recorder"
)

// Library is one user's saved videos and quota. It works with or without
// an open studio; an open studio shares its user's Library.
type Library struct {
	userID    uuid.UUID
	gateway   persistence.Gateway
	quota     *quota.Engine
	publisher events.Publisher
	logger    *zap.Logger
	emit      func(Event)

	// unreleased holds sizes of deleted videos whose quota release has not
	// been persisted yet, keyed by video id.
	mu         sync.Mutex
	unreleased map[uuid.UUID]int64
}

// OpenLibrary loads (or initialises) the user's quota.
func OpenLibrary(ctx context.Context, userID uuid.UUID, gw persistence.Gateway, pub events.Publisher, logger *zap.Logger) (*Library, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	eng := quota.NewEngine(gw, userID, logger)
	if _, err := eng.LoadOrInit(ctx); err != nil {
		return nil, err
	}
	return &Library{
		userID:    userID,
		gateway:   gw,
		quota:     eng,
		publisher: pub,
		logger:     logger.With(zap.String("user_id", userID.String())),
		emit:       func(Event) {},
		unreleased: make(map[uuid.UUID]int64),
	}, nil
}

// Quota is the engine enforcing this user's limits.
func (l *Library) Quota() *quota.Engine { return l.quota }

func (l *Library) Stats() quota.Stats { return l.quota.Stats() }

// ListVideos returns the user's videos, newest first.
func (l *Library) ListVideos(ctx context.Context) ([]models.VideoRecord, error) {
	return l.gateway.ListVideos(ctx, l.userID)
}

// owned fetches a video and checks it belongs to the user.
func (l *Library) owned(ctx context.Context, id uuid.UUID) (models.VideoRecord, error) {
	rec, err := l.gateway.GetVideo(ctx, id)
	if err != nil {
		return models.VideoRecord{}, err
	}
	if rec.UserID != l.userID {
		return models.VideoRecord{}, fmt.Errorf("%w: video %s", persistence.ErrForbidden, id)
	}
	return rec, nil
}

// DeleteVideo removes a video the user owns and releases its quota. If the
// video is already gone but its release failed earlier, only the release
// is retried.
func (l *Library) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	if size, ok := l.takeUnreleased(id); ok {
		return l.release(ctx, id, size)
	}
	rec, err := l.owned(ctx, id)
	if err != nil {
		return err
	}
	if err := l.gateway.Delete(ctx, id); err != nil {
		return err
	}
	return l.release(ctx, id, rec.SizeBytes)
}

// release commits the quota decrement for a deleted video. On failure the
// decrement is kept for the next retry.
func (l *Library) release(ctx context.Context, id uuid.UUID, size int64) error {
	if _, err := l.quota.CommitDelete(ctx, size); err != nil {
		l.mu.Lock()
		l.unreleased[id] = size
		l.mu.Unlock()
		l.logger.Warn("quota release deferred", zap.String("video_id", id.String()), zap.Int64("size_bytes", size), zap.Error(err))
		return err
	}
	l.logger.Info("video deleted", zap.String("video_id", id.String()), zap.Int64("size_bytes", size))
	l.emit(Event{Type: EventVideoDeleted, VideoID: id})
	l.publish(ctx, events.TypeVideoDeleted, map[string]any{"video_id": id, "size_bytes": size})
	return nil
}

func (l *Library) takeUnreleased(id uuid.UUID) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	size, ok := l.unreleased[id]
	if ok {
		delete(l.unreleased, id)
	}
	return size, ok
}

// settle retries every deferred quota release. It runs before the quota
// is consulted for a new recording or save.
func (l *Library) settle(ctx context.Context) error {
	l.mu.Lock()
	ids := make([]uuid.UUID, 0, len(l.unreleased))
	for id := range l.unreleased {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if size, ok := l.takeUnreleased(id); ok {
			errs = append(errs, l.release(ctx, id, size))
		}
	}
	return errors.Join(errs...)
}

// PendingReleases reports how many deleted videos still hold quota.
func (l *Library) PendingReleases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unreleased)
}

// DownloadURL returns a time-limited URL for a video the user owns.
func (l *Library) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	if _, err := l.owned(ctx, id); err != nil {
		return "", err
	}
	return l.gateway.DownloadURL(ctx, id)
}

// UpgradeTier switches the user's tier.
func (l *Library) UpgradeTier(ctx context.Context, name quota.TierName) (models.UserQuota, error) {
	prev := l.quota.Quota().Tier
	q, err := l.quota.UpgradeTier(ctx, name)
	if err != nil {
		return models.UserQuota{}, err
	}
	l.emit(Event{Type: EventTierChanged, Tier: q.Tier})
	l.publish(ctx, events.TypeTierChanged, map[string]string{"from": prev, "to": q.Tier})
	return q, nil
}

// Save runs the persistence pipeline for a finished recording: storage
// check, upload with metadata, quota commit. When the commit fails the
// saved video is removed again so quota and storage stay in step.
func (l *Library) Save(ctx context.Context, art *recorder.Artifact, progress persistence.Progress) (models.VideoRecord, error) {
	size := int64(len(art.Data))
	if err := l.settle(ctx); err != nil {
		l.logger.Warn("deferred quota releases still failing", zap.Error(err))
	}
	if err := l.quota.CanStore(size); err != nil {
		return models.VideoRecord{}, err
	}
	meta := persistence.Metadata{
		UserID:       l.userID,
		DurationMs:   art.Duration.Milliseconds(),
		MimeType:     art.MimeType,
		Extension:    art.Extension,
		TemplateName: art.TemplateName,
		Filters:      models.FilterSnapshot(art.Filters),
		Effects:      models.EffectSnapshot(art.Effects),
		CreatedAt:    art.CreatedAt,
	}
	rec, err := l.gateway.Save(ctx, art.Data, meta, progress)
	if err != nil {
		return models.VideoRecord{}, err
	}
	if _, err := l.quota.CommitSave(ctx, size); err != nil {
		if derr := l.gateway.Delete(ctx, rec.ID); derr != nil && !errors.Is(derr, persistence.ErrNotFound) {
			l.logger.Error("rollback of saved video failed", zap.String("video_id", rec.ID.String()), zap.Error(derr))
		}
		return models.VideoRecord{}, err
	}
	l.publish(ctx, events.TypeVideoCreated, rec)
	return rec, nil
}

// publish sends a domain event. Delivery failures are logged only; the
// user-facing operation has already succeeded.
func (l *Library) publish(ctx context.Context, typ string, data any) {
	ev, err := events.New(typ, l.userID, data)
	if err != nil {
		l.logger.Warn("build event failed", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := l.publisher.Publish(ctx, ev); err != nil {
		l.logger.Warn("publish event failed", zap.String("type", typ), zap.Error(err))
	}
}
