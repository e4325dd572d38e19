package videos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/pkg/database"
)

// SQLiteStore keeps metadata in a single-file database for local use.
// Timestamps are stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := database.MigrateSQLite(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) InsertVideo(ctx context.Context, v *models.VideoRecord) error {
	filters, effects, err := marshalSnapshots(v)
	if err != nil {
		return err
	}
	const q = `INSERT INTO videos (` + videoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q, v.ID.String(), v.UserID.String(), v.ObjectKey, v.URL, v.SizeBytes, v.DurationMs,
		v.MimeType, v.TemplateName, string(filters), string(effects), v.Checksum, v.CreatedAt.UnixMilli())
	return err
}

func (s *SQLiteStore) GetVideo(ctx context.Context, id uuid.UUID) (*models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE id = ?`
	v, err := scanSQLiteVideo(s.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	return v, err
}

func (s *SQLiteStore) ListVideos(ctx context.Context, userID uuid.UUID) ([]models.VideoRecord, error) {
	q := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.VideoRecord
	for rows.Next() {
		v, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *v)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetQuota(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error) {
	const q = `SELECT user_id, tier, used_bytes, video_count, last_update FROM user_quotas WHERE user_id = ?`
	var (
		uq   models.UserQuota
		id   string
		last int64
	)
	err := s.db.QueryRowContext(ctx, q, userID.String()).Scan(&id, &uq.Tier, &uq.UsedBytes, &uq.VideoCount, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if uq.UserID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	uq.LastUpdate = time.UnixMilli(last).UTC()
	return &uq, nil
}

func (s *SQLiteStore) UpsertQuota(ctx context.Context, uq *models.UserQuota) error {
	const q = `INSERT INTO user_quotas (user_id, tier, used_bytes, video_count, last_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET tier = excluded.tier, used_bytes = excluded.used_bytes,
			video_count = excluded.video_count, last_update = excluded.last_update`
	_, err := s.db.ExecContext(ctx, q, uq.UserID.String(), uq.Tier, uq.UsedBytes, uq.VideoCount, uq.LastUpdate.UnixMilli())
	return err
}

func scanSQLiteVideo(row rowScanner) (*models.VideoRecord, error) {
	var (
		v               models.VideoRecord
		id, userID      string
		filters, effect string
		created         int64
		err             error
	)
	if err = row.Scan(&id, &userID, &v.ObjectKey, &v.URL, &v.SizeBytes, &v.DurationMs, &v.MimeType,
		&v.TemplateName, &filters, &effect, &v.Checksum, &created); err != nil {
		return nil, err
	}
	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse video id: %w", err)
	}
	if v.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	v.CreatedAt = time.UnixMilli(created).UTC()
	if err := unmarshalSnapshots(&v, []byte(filters), []byte(effect)); err != nil {
		return nil, err
	}
	return &v, nil
}

var _ persistence.MetadataStore = (*SQLiteStore)(nil)
