// Package persistence defines the boundary between the studio core and the
// remote object store and metadata database.
package persistence

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/models"
)

var (
	// ErrPersistence marks a failed remote save, delete, read or write.
	ErrPersistence = errors.New("persistence error")
	// ErrNotFound is returned when a video or quota document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a user touches a video they do not own.
	ErrForbidden = errors.New("forbidden")
)

// Metadata describes an artifact handed to Save.
type Metadata struct {
	UserID       uuid.UUID
	DurationMs   int64
	MimeType     string
	Extension    string
	TemplateName string
	Filters      models.FilterSnapshot
	Effects      models.EffectSnapshot
	CreatedAt    time.Time
}

// Progress receives upload progress in percent, 0 to 100.
type Progress func(percent int)

// Gateway is everything the studio needs from remote persistence.
type Gateway interface {
	Save(ctx context.Context, data []byte, meta Metadata, progress Progress) (models.VideoRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetVideo(ctx context.Context, id uuid.UUID) (models.VideoRecord, error)
	ListVideos(ctx context.Context, userID uuid.UUID) ([]models.VideoRecord, error)
	DownloadURL(ctx context.Context, id uuid.UUID) (string, error)
	ReadQuota(ctx context.Context, userID uuid.UUID) (models.UserQuota, error)
	WriteQuota(ctx context.Context, q models.UserQuota) error
}

// ObjectStore holds artifact bytes.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (url string, err error)
	Delete(ctx context.Context, key string) error
	DownloadURL(ctx context.Context, key string) (string, error)
}

// MetadataStore holds video records and quota documents. Lookups of missing
// rows return ErrNotFound.
type MetadataStore interface {
	InsertVideo(ctx context.Context, v *models.VideoRecord) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.VideoRecord, error)
	ListVideos(ctx context.Context, userID uuid.UUID) ([]models.VideoRecord, error)
	DeleteVideo(ctx context.Context, id uuid.UUID) error
	GetQuota(ctx context.Context, userID uuid.UUID) (*models.UserQuota, error)
	UpsertQuota(ctx context.Context, q *models.UserQuota) error
}

// OrphanQueue schedules deletion of objects whose metadata never landed.
type OrphanQueue interface {
	EnqueueOrphan(ctx context.Context, key string) error
}
