package recordings

import (
	"bytes"
	"encoding/json"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/middleware"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/pkg/clock"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type server struct {
	t      *testing.T
	router *gin.Engine
}

func newServer(t *testing.T, source capture.Source) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gw := persistence.NewStore(persistence.NewMemoryObjects(), persistence.NewMemoryMetadata(), nil, nil)
	mgr := studio.NewManager(studio.ManagerConfig{Studio: studio.Config{
		Gateway:     gw,
		Source:      source,
		Constraints: capture.Constraints{Width: 32, Height: 24, FrameRate: 10},
		Encoder:     &encoder.MJPEG{},
		ChunkSize:   64,
		Clock:       clock.NewFake(time.Unix(1_700_000_000, 0)),
		Countdown:   -1,
	}})
	t.Cleanup(mgr.CloseAll)

	user := uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, user)
		c.Next()
	})
	NewHandler(mgr, nil).Register(r)
	return &server{t: t, router: r}
}

func (s *server) raw(method, path, body string) *httptest.ResponseRecorder {
	s.t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *server) do(method, path, body string, want int) envelope {
	s.t.Helper()
	w := s.raw(method, path, body)
	if w.Code != want {
		s.t.Fatalf("%s %s: status = %d, want %d (%s)", method, path, w.Code, want, w.Body.String())
	}
	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return env
}

func TestStudioRequiresOpen(t *testing.T) {
	s := newServer(t, &capture.SyntheticSource{})
	s.do(http.MethodGet, "/studio", "", http.StatusNotFound)
	s.do(http.MethodPost, "/studio/recording/start", "", http.StatusNotFound)
	s.do(http.MethodPost, "/studio/close", "", http.StatusNoContent)
}

func TestOpenDeniedCamera(t *testing.T) {
	s := newServer(t, &capture.SyntheticSource{Deny: true})
	s.do(http.MethodPost, "/studio/open", "", http.StatusServiceUnavailable)
}

func TestEditSession(t *testing.T) {
	s := newServer(t, &capture.SyntheticSource{})
	s.do(http.MethodPost, "/studio/open", "", http.StatusOK)

	s.do(http.MethodPut, "/studio/template", `{"name":"NOPE"}`, http.StatusBadRequest)
	env := s.do(http.MethodPut, "/studio/template", `{"name":"PROFESSIONAL"}`, http.StatusOK)
	var snap session.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Template != "PROFESSIONAL" || snap.Filters.Brightness != 105 {
		t.Fatalf("snapshot = %+v", snap)
	}

	env = s.do(http.MethodPut, "/studio/filters", `{"blur":3}`, http.StatusOK)
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Filters.Blur != 3 || snap.Filters.Brightness != 105 {
		t.Fatalf("partial filter update lost fields: %+v", snap.Filters)
	}

	env = s.do(http.MethodPut, "/studio/effects", `{"grain":true}`, http.StatusOK)
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Effects.Grain {
		t.Fatalf("effects = %+v", snap.Effects)
	}

	s.do(http.MethodPut, "/studio/overlays", `[{"text":"Hi","position":"middle","font_size":24,"color":"#fff"}]`, http.StatusBadRequest)
	env = s.do(http.MethodPut, "/studio/overlays", `[{"text":"Hello","position":"bottom","font_size":24,"color":"#ffffff"}]`, http.StatusOK)
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Overlays) != 1 || snap.Overlays[0].Text != "Hello" {
		t.Fatalf("overlays = %+v", snap.Overlays)
	}

	s.do(http.MethodPut, "/studio/background", `{"type":"gradient","colors":["#102030","#405060"]}`, http.StatusOK)
}

func TestPreviewIsJPEG(t *testing.T) {
	s := newServer(t, &capture.SyntheticSource{})
	s.do(http.MethodPost, "/studio/open", "", http.StatusOK)
	w := s.raw(http.MethodGet, "/studio/preview.jpg", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("status = %d, type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := jpeg.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 24 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestRecordingControls(t *testing.T) {
	s := newServer(t, &capture.SyntheticSource{})
	s.do(http.MethodPost, "/studio/open", "", http.StatusOK)

	s.do(http.MethodPost, "/studio/recording/pause", "", http.StatusConflict)
	s.do(http.MethodPost, "/studio/recording/start", `{"duration_seconds":-1}`, http.StatusBadRequest)
	s.do(http.MethodPost, "/studio/recording/start", `{"duration_seconds":600}`, http.StatusForbidden)

	env := s.do(http.MethodPost, "/studio/recording/start", `{"duration_seconds":10}`, http.StatusOK)
	var st studio.Status
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "recording" {
		t.Fatalf("state = %s", st.State)
	}
	s.do(http.MethodPost, "/studio/recording/start", "", http.StatusConflict)
	s.do(http.MethodPost, "/studio/recording/pause", "", http.StatusOK)
	s.do(http.MethodPost, "/studio/recording/resume", "", http.StatusOK)
	s.do(http.MethodPost, "/studio/recording/stop", "", http.StatusOK)

	s.do(http.MethodPost, "/studio/recording/discard", "", http.StatusConflict)
	s.do(http.MethodPost, "/studio/close", "", http.StatusNoContent)
	s.do(http.MethodGet, "/studio", "", http.StatusNotFound)
}
