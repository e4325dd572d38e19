package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
)

const videoColumns = `id, user_id, object_key, url, size_bytes, duration_ms, mime_type, template_name, filters, effects, checksum, created_at`

// Repository stores video metadata and quota documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertVideo records a saved artifact.
func (r *Repository) InsertVideo(ctx context.Context, v *models.VideoRecord) error {
	filters, effects, err := marshalSnapshots(v)
	if err != nil {
		return err
	}
	const q = `INSERT INTO videos (` + videoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.pool.Exec(ctx, q, v.ID, v.UserID, v.ObjectKey, v.URL, v.SizeBytes, v.DurationMs, v.MimeType,
		v.TemplateName, filters, effects, v.Checksum, v.CreatedAt)
	return err
}

// GetVideo returns a video by ID.
func (r *Repository) GetVideo(ctx context.Context, id uuid.UUID) (*models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := scanVideo(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ListVideos returns a user's videos, newest first.
func (r *Repository) ListVideos(ctx context.Context, userID uuid.UUID) ([]models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

// DeleteVideo removes a video row.
func (r *Repository) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetQuota returns a user's quota document.
func (r *Repository) GetQuota(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	const q = `SELECT user_id, tier, used_bytes, video_count, last_update FROM user_quotas WHERE user_id = $1`
	var uq models.UserQuota
	err := r.pool.QueryRow(ctx, q, userID).Scan(&uq.UserID, &uq.Tier, &uq.UsedBytes, &uq.VideoCount, &uq.LastUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &uq, nil
}

// UpsertQuota writes the whole quota document.
func (r *Repository) UpsertQuota(ctx context.Context, uq *models.UserQuota) error {
	const q = `INSERT INTO user_quotas (user_id, tier, used_bytes, video_count, last_update)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, used_bytes = EXCLUDED.used_bytes,
			video_count = EXCLUDED.video_count, last_update = EXCLUDED.last_update`
	_, err := r.pool.Exec(ctx, q, uq.UserID, uq.Tier, uq.UsedBytes, uq.VideoCount, uq.LastUpdate)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.VideoRecord, error) {
	var v models.VideoRecord
	var filters, effects []byte
	if err := row.Scan(&v.ID, &v.UserID, &v.ObjectKey, &v.URL, &v.SizeBytes, &v.DurationMs, &v.MimeType,
		&v.TemplateName, &filters, &effects, &v.Checksum, &v.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalSnapshots(&v, filters, effects); err != nil {
		return nil, err
	}
	return &v, nil
}

func marshalSnapshots(v *models.VideoRecord) (filters, effects []byte, err error) {
	if filters, err = json.Marshal(v.Filters); err != nil {
		return nil, nil, fmt.Errorf("marshal filters: %w", err)
	}
	if effects, err = json.Marshal(v.Effects); err != nil {
		return nil, nil, fmt.Errorf("marshal effects: %w", err)
	}
	return filters, effects, nil
}

func unmarshalSnapshots(v *models.VideoRecord, filters, effects []byte) error {
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &v.Filters); err != nil {
			return fmt.Errorf("decode filters: %w", err)
		}
	}
	if len(effects) > 0 {
		if err := json.Unmarshal(effects, &v.Effects); err != nil {
			return fmt.Errorf("decode effects: %w", err)
		}
	}
	return nil
}

var _ persistence.MetadataStore = (*Repository)(nil)
