package videos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/pkg/database"
)

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "meta.db"), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	user := uuid.New()
	if err := s.UpsertQuota(context.Background(), &models.UserQuota{UserID: user, Tier: "FREE", UsedBytes: 7, VideoCount: 1, LastUpdate: time.Now()}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	q, err := s.GetQuota(context.Background(), user)
	if err != nil || q.UsedBytes != 7 {
		t.Fatalf("quota = %+v, err = %v", q, err)
	}
}

// TestPostgresRepository runs against a real database when
// VIDEOCREATOR_TEST_DATABASE_URL is set.
func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("VIDEOCREATOR_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("VIDEOCREATOR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	if err := database.MigratePostgres(dsn, zap.NewNop()); err != nil {
		t.Fatal(err)
	}
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolConfig{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	exerciseStore(t, NewRepository(pool))
}

func exerciseStore(t *testing.T, s persistence.MetadataStore) {
	t.Helper()
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()
	base := time.Now().UTC().Truncate(time.Millisecond)

	older := models.VideoRecord{
		ID: uuid.New(), UserID: user, ObjectKey: "videos/a/1.webm", URL: "u1", SizeBytes: 10, DurationMs: 1000,
		MimeType: models.MimeTypeWebM, TemplateName: "PROFESSIONAL",
		Filters:   models.FilterSnapshot{Brightness: 105, Contrast: 110, Saturate: 100},
		Effects:   models.EffectSnapshot{Vignette: true},
		Checksum:  "abc",
		CreatedAt: base,
	}
	newer := older
	newer.ID = uuid.New()
	newer.ObjectKey = "videos/a/2.webm"
	newer.CreatedAt = base.Add(time.Second)
	foreign := older
	foreign.ID = uuid.New()
	foreign.UserID = other

	for _, v := range []models.VideoRecord{older, newer, foreign} {
		if err := s.InsertVideo(ctx, &v); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetVideo(ctx, older.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Filters != older.Filters || got.Effects != older.Effects || !got.CreatedAt.Equal(base) || got.TemplateName != "PROFESSIONAL" {
		t.Fatalf("got %+v", got)
	}

	list, err := s.ListVideos(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("list order = %+v", list)
	}

	if err := s.DeleteVideo(ctx, older.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteVideo(ctx, older.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := s.GetVideo(ctx, older.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("get deleted err = %v", err)
	}

	if _, err := s.GetQuota(ctx, user); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("missing quota err = %v", err)
	}
	q := models.UserQuota{UserID: user, Tier: "FREE", UsedBytes: 10, VideoCount: 1, LastUpdate: base}
	if err := s.UpsertQuota(ctx, &q); err != nil {
		t.Fatal(err)
	}
	q.Tier = "PREMIUM"
	q.UsedBytes = 20
	if err := s.UpsertQuota(ctx, &q); err != nil {
		t.Fatal(err)
	}
	back, err := s.GetQuota(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if back.Tier != "PREMIUM" || back.UsedBytes != 20 || back.VideoCount != 1 || !back.LastUpdate.Equal(base) {
		t.Fatalf("quota = %+v", back)
	}
}
