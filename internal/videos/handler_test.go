package videos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/middleware"
	"github.com/aura-webinar/videocreator/internal/models"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/templates"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type fixture struct {
	router *gin.Engine
	gw     *persistence.Store
	user   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw := persistence.NewStore(persistence.NewMemoryObjects(), persistence.NewMemoryMetadata(), nil, nil)
	mgr := studio.NewManager(studio.ManagerConfig{Studio: studio.Config{Gateway: gw}})
	t.Cleanup(mgr.CloseAll)

	f := &fixture{router: gin.New(), gw: gw, user: uuid.New()}
	f.router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, f.user)
		c.Next()
	})
	NewHandler(mgr, templates.NewRegistry(), nil).Register(f.router)
	return f
}

func (f *fixture) seed(t *testing.T, owner uuid.UUID) models.VideoRecord {
	t.Helper()
	rec, err := f.gw.Save(context.Background(), []byte("frames"), persistence.Metadata{
		UserID: owner, MimeType: models.MimeTypeWebM, Extension: ".webm", TemplateName: "Custom",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func TestListVideos(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, f.user)
	f.seed(t, uuid.New())

	code, env := f.do(t, http.MethodGet, "/videos", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var data struct {
		Videos []models.VideoRecord `json:"videos"`
		Stats  quota.Stats          `json:"stats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Videos) != 1 || data.Videos[0].ID != rec.ID {
		t.Fatalf("videos = %+v", data.Videos)
	}
	if data.Stats.Tier != quota.Free {
		t.Fatalf("stats = %+v", data.Stats)
	}
}

func TestDeleteVideo(t *testing.T) {
	f := newFixture(t)
	mine := f.seed(t, f.user)
	theirs := f.seed(t, uuid.New())

	if code, _ := f.do(t, http.MethodDelete, "/videos/not-a-uuid", ""); code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", code)
	}
	if code, _ := f.do(t, http.MethodDelete, "/videos/"+theirs.ID.String(), ""); code != http.StatusForbidden {
		t.Fatalf("foreign status = %d", code)
	}
	if code, _ := f.do(t, http.MethodDelete, "/videos/"+mine.ID.String(), ""); code != http.StatusNoContent {
		t.Fatalf("own status = %d", code)
	}
	if code, _ := f.do(t, http.MethodDelete, "/videos/"+mine.ID.String(), ""); code != http.StatusNotFound {
		t.Fatalf("repeat status = %d", code)
	}
}

func TestDownloadURL(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, f.user)
	code, env := f.do(t, http.MethodGet, "/videos/"+rec.ID.String()+"/download-url", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["download_url"] != "mem://"+rec.ObjectKey {
		t.Fatalf("url = %q", data["download_url"])
	}
}

func TestUpgradeQuota(t *testing.T) {
	f := newFixture(t)

	if code, _ := f.do(t, http.MethodPost, "/quota/upgrade", `{}`); code != http.StatusBadRequest {
		t.Fatalf("missing tier status = %d", code)
	}
	if code, _ := f.do(t, http.MethodPost, "/quota/upgrade", `{"tier":"GOLD"}`); code != http.StatusBadRequest {
		t.Fatalf("unknown tier status = %d", code)
	}
	code, env := f.do(t, http.MethodPost, "/quota/upgrade", `{"tier":"PREMIUM"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d (%s)", code, env.Error)
	}
	code, env = f.do(t, http.MethodGet, "/quota", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var stats quota.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Tier != quota.Premium || stats.MaxVideos != 5 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestTemplates(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/templates", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var list []templates.Template
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, tpl := range list {
		if tpl.Key == "PROFESSIONAL" {
			found = true
		}
	}
	if !found {
		t.Fatalf("templates = %+v", list)
	}
}
