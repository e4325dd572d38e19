package persistence

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/aura-webinar/videocreator/internal/models"
)

// FolderVideos is the object key prefix for recorded videos.
const FolderVideos = "videos"

// VideoKey returns videos/{user_id}/{unix_millis}{ext}.
func VideoKey(userID uuid.UUID, createdAt time.Time, ext string) string {
	return path.Join(FolderVideos, userID.String(), strconv.FormatInt(createdAt.UnixMilli(), 10)+ext)
}

// Store implements Gateway on top of an object store and a metadata store.
type Store struct {
	objects ObjectStore
	meta    MetadataStore
	orphans OrphanQueue
	logger  *zap.Logger
}

// NewStore wires the gateway. orphans may be nil, in which case objects that
// cannot be cleaned up synchronously are only logged.
func NewStore(objects ObjectStore, meta MetadataStore, orphans OrphanQueue, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{objects: objects, meta: meta, orphans: orphans, logger: logger}
}

// Save uploads the artifact, then records its metadata. If the metadata
// insert fails the uploaded object is removed again.
func (s *Store) Save(ctx context.Context, data []byte, meta Metadata, progress Progress) (models.VideoRecord, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	sum := blake2b.Sum256(data)
	rec := models.VideoRecord{
		ID:           uuid.New(),
		UserID:       meta.UserID,
		ObjectKey:    VideoKey(meta.UserID, meta.CreatedAt, meta.Extension),
		SizeBytes:    int64(len(data)),
		DurationMs:   meta.DurationMs,
		MimeType:     meta.MimeType,
		TemplateName: meta.TemplateName,
		Filters:      meta.Filters,
		Effects:      meta.Effects,
		Checksum:     hex.EncodeToString(sum[:]),
		CreatedAt:    meta.CreatedAt,
	}

	body := newProgressReader(data, progress)
	url, err := s.objects.Put(ctx, rec.ObjectKey, rec.MimeType, body, rec.SizeBytes)
	if err != nil {
		return models.VideoRecord{}, fmt.Errorf("%w: upload %s: %w", ErrPersistence, rec.ObjectKey, err)
	}
	body.finish()
	rec.URL = url

	if err := s.meta.InsertVideo(ctx, &rec); err != nil {
		s.RemoveObject(ctx, rec.ObjectKey)
		return models.VideoRecord{}, fmt.Errorf("%w: insert video: %w", ErrPersistence, err)
	}
	s.logger.Info("video saved",
		zap.String("video_id", rec.ID.String()),
		zap.String("user_id", rec.UserID.String()),
		zap.String("object_key", rec.ObjectKey),
		zap.Int64("size_bytes", rec.SizeBytes))
	return rec, nil
}

// Delete removes the metadata row first, then the object. A failed object
// delete is handed to the orphan queue.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	rec, err := s.meta.GetVideo(ctx, id)
	if err != nil {
		return s.wrap("get video", err)
	}
	if err := s.meta.DeleteVideo(ctx, id); err != nil {
		return s.wrap("delete video", err)
	}
	s.RemoveObject(ctx, rec.ObjectKey)
	return nil
}

// RemoveObject deletes an object, falling back to the orphan queue.
func (s *Store) RemoveObject(ctx context.Context, key string) {
	err := s.objects.Delete(ctx, key)
	if err == nil {
		return
	}
	s.logger.Warn("object delete failed", zap.String("object_key", key), zap.Error(err))
	if s.orphans == nil {
		return
	}
	if qerr := s.orphans.EnqueueOrphan(ctx, key); qerr != nil {
		s.logger.Error("enqueue orphan failed", zap.String("object_key", key), zap.Error(qerr))
	}
}

func (s *Store) GetVideo(ctx context.Context, id uuid.UUID) (models.VideoRecord, error) {
	rec, err := s.meta.GetVideo(ctx, id)
	if err != nil {
		return models.VideoRecord{}, s.wrap("get video", err)
	}
	return *rec, nil
}

func (s *Store) ListVideos(ctx context.Context, userID uuid.UUID) ([]models.VideoRecord, error) {
	list, err := s.meta.ListVideos(ctx, userID)
	if err != nil {
		return nil, s.wrap("list videos", err)
	}
	return list, nil
}

// DownloadURL returns a time-limited URL for the video's object.
func (s *Store) DownloadURL(ctx context.Context, id uuid.UUID) (string, error) {
	rec, err := s.meta.GetVideo(ctx, id)
	if err != nil {
		return "", s.wrap("get video", err)
	}
	url, err := s.objects.DownloadURL(ctx, rec.ObjectKey)
	if err != nil {
		return "", s.wrap("download url", err)
	}
	return url, nil
}

func (s *Store) ReadQuota(ctx context.Context, userID uuid.UUID) (models.UserQuota, error) {
	q, err := s.meta.GetQuota(ctx, userID)
	if err != nil {
		return models.UserQuota{}, s.wrap("read quota", err)
	}
	return *q, nil
}

func (s *Store) WriteQuota(ctx context.Context, q models.UserQuota) error {
	if err := s.meta.UpsertQuota(ctx, &q); err != nil {
		return s.wrap("write quota", err)
	}
	return nil
}

// wrap keeps ErrNotFound visible and marks everything else as ErrPersistence.
func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// progressReader reports whole-percent steps as the object store consumes it.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	progress Progress

	mu   sync.Mutex
	read int64
	last int
}

func newProgressReader(data []byte, progress Progress) *progressReader {
	p := &progressReader{r: bytes.NewReader(data), total: int64(len(data)), progress: progress, last: -1}
	p.report(0)
	return p
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		read := p.read
		p.mu.Unlock()
		if p.total > 0 {
			p.report(int(read * 100 / p.total))
		}
	}
	return n, err
}

// Seek lets the S3 uploader rewind the body for retries.
func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.mu.Lock()
		p.read = pos
		p.mu.Unlock()
	}
	return pos, err
}

func (p *progressReader) finish() { p.report(100) }

func (p *progressReader) report(pct int) {
	if p.progress == nil {
		return
	}
	p.mu.Lock()
	if pct <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = pct
	p.mu.Unlock()
	p.progress(pct)
}

var _ io.ReadSeeker = (*progressReader)(nil)
var _ Gateway = (*Store)(nil)
