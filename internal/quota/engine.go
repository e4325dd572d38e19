// Package quota enforces per-user tier limits on recording and storage.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
)

// Store is the slice of the persistence gateway the engine needs.
type Store interface {
	ReadQuota(ctx context.Context, userID uuid.UUID) (models.UserQuota, error)
	WriteQuota(ctx context.Context, q models.UserQuota) error
}

// Stats is the storage summary shown to the user.
type Stats struct {
	Tier               TierName `json:"tier"`
	UsedBytes          int64    `json:"used_bytes"`
	MaxBytes           int64    `json:"max_bytes"`
	VideoCount         int      `json:"video_count"`
	MaxVideos          int      `json:"max_videos"`
	MaxDurationSeconds int      `json:"max_duration_seconds"`
	StoragePercentage  float64  `json:"storage_percentage"`
}

// Engine caches one user's quota and applies every mutation to the store
// before it becomes visible. The mutex is held across the store write so
// commits are serialized.
type Engine struct {
	mu     sync.Mutex
	store  Store
	userID uuid.UUID
	logger *zap.Logger
	now    func() time.Time

	q      models.UserQuota
	loaded bool
}

func NewEngine(store Store, userID uuid.UUID, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		userID: userID,
		logger: logger.With(zap.String("user_id", userID.String())),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// LoadOrInit reads the user's quota, creating a Free quota with zero usage
// on first use.
func (e *Engine) LoadOrInit(ctx context.Context) (models.UserQuota, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return e.q, nil
	}
	q, err := e.store.ReadQuota(ctx, e.userID)
	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrNotFound):
		q = models.UserQuota{UserID: e.userID, Tier: string(Free), LastUpdate: e.now()}
		if err := e.store.WriteQuota(ctx, q); err != nil {
			return models.UserQuota{}, persistErr("init quota", err)
		}
		e.logger.Info("quota initialized", zap.String("tier", q.Tier))
	default:
		return models.UserQuota{}, persistErr("read quota", err)
	}
	e.q = q
	e.loaded = true
	return q, nil
}

// CanRecord fails when the video count is at the tier ceiling or the
// planned duration is above the tier's maximum.
func (e *Engine) CanRecord(plannedDurationSeconds int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrNotLoaded
	}
	tier := TierFor(e.q.Tier)
	if e.q.VideoCount >= tier.MaxVideoCount {
		return &ExceededError{Limit: LimitVideos, Tier: tier.Name, Requested: int64(e.q.VideoCount) + 1, Max: int64(tier.MaxVideoCount)}
	}
	if plannedDurationSeconds > tier.MaxDurationSeconds {
		return &ExceededError{Limit: LimitDuration, Tier: tier.Name, Requested: int64(plannedDurationSeconds), Max: int64(tier.MaxDurationSeconds)}
	}
	return nil
}

// CanStore fails when the candidate would push used bytes over the tier.
func (e *Engine) CanStore(sizeBytes int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrNotLoaded
	}
	return e.checkBytes(sizeBytes)
}

func (e *Engine) checkBytes(sizeBytes int64) error {
	tier := TierFor(e.q.Tier)
	if e.q.UsedBytes+sizeBytes > tier.MaxTotalBytes {
		return &ExceededError{Limit: LimitBytes, Tier: tier.Name, Requested: e.q.UsedBytes + sizeBytes, Max: tier.MaxTotalBytes}
	}
	return nil
}

// CommitSave records a persisted video. Limits are checked again so a
// commit can never leave usage above the tier. The in-memory quota is
// restored if the store write fails.
func (e *Engine) CommitSave(ctx context.Context, sizeBytes int64) (models.UserQuota, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return models.UserQuota{}, ErrNotLoaded
	}
	tier := TierFor(e.q.Tier)
	if e.q.VideoCount+1 > tier.MaxVideoCount {
		return models.UserQuota{}, &ExceededError{Limit: LimitVideos, Tier: tier.Name, Requested: int64(e.q.VideoCount) + 1, Max: int64(tier.MaxVideoCount)}
	}
	if err := e.checkBytes(sizeBytes); err != nil {
		return models.UserQuota{}, err
	}
	return e.apply(ctx, "commit save", func(q *models.UserQuota) {
		q.UsedBytes += sizeBytes
		q.VideoCount++
	})
}

// CommitDelete records a removed video. Counters are floored at zero.
func (e *Engine) CommitDelete(ctx context.Context, sizeBytes int64) (models.UserQuota, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return models.UserQuota{}, ErrNotLoaded
	}
	return e.apply(ctx, "commit delete", func(q *models.UserQuota) {
		q.UsedBytes = max(q.UsedBytes-sizeBytes, 0)
		q.VideoCount = max(q.VideoCount-1, 0)
	})
}

// UpgradeTier switches the active tier. Usage is left untouched, so a
// downgrade can leave the user over the new limits until videos are deleted.
func (e *Engine) UpgradeTier(ctx context.Context, name TierName) (models.UserQuota, error) {
	if _, ok := LookupTier(name); !ok {
		return models.UserQuota{}, fmt.Errorf("%w: %q", ErrUnknownTier, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return models.UserQuota{}, ErrNotLoaded
	}
	return e.apply(ctx, "upgrade tier", func(q *models.UserQuota) {
		q.Tier = string(name)
	})
}

// apply mutates the cached quota, persists it, and rolls back on failure.
// Caller holds e.mu.
func (e *Engine) apply(ctx context.Context, op string, mutate func(*models.UserQuota)) (models.UserQuota, error) {
	prev := e.q
	mutate(&e.q)
	e.q.LastUpdate = e.now()
	if err := e.store.WriteQuota(ctx, e.q); err != nil {
		e.q = prev
		e.logger.Warn("quota write failed, rolled back", zap.String("op", op), zap.Error(err))
		return models.UserQuota{}, persistErr(op, err)
	}
	e.logger.Debug("quota updated",
		zap.String("op", op),
		zap.String("tier", e.q.Tier),
		zap.Int64("used_bytes", e.q.UsedBytes),
		zap.Int("video_count", e.q.VideoCount))
	return e.q, nil
}

// Quota returns the cached quota.
func (e *Engine) Quota() models.UserQuota {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q
}

// Tier returns the active tier's limits.
func (e *Engine) Tier() Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return TierFor(e.q.Tier)
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	tier := TierFor(e.q.Tier)
	return Stats{
		Tier:               tier.Name,
		UsedBytes:          e.q.UsedBytes,
		MaxBytes:           tier.MaxTotalBytes,
		VideoCount:         e.q.VideoCount,
		MaxVideos:          tier.MaxVideoCount,
		MaxDurationSeconds: tier.MaxDurationSeconds,
		StoragePercentage:  float64(e.q.UsedBytes) / float64(tier.MaxTotalBytes) * 100,
	}
}

func persistErr(op string, err error) error {
	if errors.Is(err, persistence.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", persistence.ErrPersistence, op, err)
}
