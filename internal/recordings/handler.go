// Package recordings serves the live studio: opening the camera, editing
// the look of the session, the preview frame and recording controls.
package recordings

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/apierr"
	"github.com/aura-webinar/videocreator/internal/middleware"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/pkg/response"
)

const previewQuality = 80

// Studios opens and finds per-user studios.
type Studios interface {
	Open(ctx context.Context, userID uuid.UUID) (*studio.Studio, error)
	Get(userID uuid.UUID) (*studio.Studio, error)
	Close(userID uuid.UUID)
}

// Handler handles studio HTTP endpoints.
type Handler struct {
	studios Studios
	logger  *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(studios Studios, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{studios: studios, logger: logger}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/studio/open", h.Open)
	r.POST("/studio/close", h.Close)
	r.GET("/studio", h.Status)
	r.PUT("/studio/template", h.ApplyTemplate)
	r.PUT("/studio/filters", h.UpdateFilters)
	r.PUT("/studio/effects", h.UpdateEffects)
	r.PUT("/studio/overlays", h.SetOverlays)
	r.PUT("/studio/background", h.SetBackground)
	r.GET("/studio/preview.jpg", h.Preview)
	r.POST("/studio/recording/start", h.Start)
	r.POST("/studio/recording/pause", h.Pause)
	r.POST("/studio/recording/resume", h.Resume)
	r.POST("/studio/recording/stop", h.Stop)
	r.POST("/studio/recording/retry-save", h.RetrySave)
	r.POST("/studio/recording/discard", h.Discard)
}

func (h *Handler) studio(c *gin.Context) (*studio.Studio, bool) {
	st, err := h.studios.Get(middleware.UserID(c))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return nil, false
	}
	return st, true
}

// Open handles POST /studio/open. Opening an already open studio returns it.
func (h *Handler) Open(c *gin.Context) {
	st, err := h.studios.Open(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, st.Status())
}

// Close handles POST /studio/close.
func (h *Handler) Close(c *gin.Context) {
	h.studios.Close(middleware.UserID(c))
	response.NoContent(c)
}

// Status handles GET /studio.
func (h *Handler) Status(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	response.OK(c, st.Status())
}

type templateRequest struct {
	Name string `json:"name" binding:"required"`
}

// ApplyTemplate handles PUT /studio/template.
func (h *Handler) ApplyTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st, ok := h.studio(c)
	if !ok {
		return
	}
	if err := st.ApplyTemplate(req.Name); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, st.Snapshot())
}

// UpdateFilters handles PUT /studio/filters. Fields left out keep their
// current value.
func (h *Handler) UpdateFilters(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	f := st.Snapshot().Filters
	if err := c.ShouldBindJSON(&f); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st.UpdateFilters(f)
	response.OK(c, st.Snapshot())
}

// UpdateEffects handles PUT /studio/effects. Fields left out keep their
// current value.
func (h *Handler) UpdateEffects(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	e := st.Snapshot().Effects
	if err := c.ShouldBindJSON(&e); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st.UpdateEffects(e)
	response.OK(c, st.Snapshot())
}

// SetOverlays handles PUT /studio/overlays. The list replaces the current one.
func (h *Handler) SetOverlays(c *gin.Context) {
	var overlays []session.TextOverlay
	if err := c.ShouldBindJSON(&overlays); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st, ok := h.studio(c)
	if !ok {
		return
	}
	if err := st.SetOverlays(overlays); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, st.Snapshot())
}

// SetBackground handles PUT /studio/background.
func (h *Handler) SetBackground(c *gin.Context) {
	var bg session.Background
	if err := c.ShouldBindJSON(&bg); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	st, ok := h.studio(c)
	if !ok {
		return
	}
	st.SetBackground(bg)
	response.OK(c, st.Snapshot())
}

// Preview handles GET /studio/preview.jpg.
func (h *Handler) Preview(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, st.Preview(), &jpeg.Options{Quality: previewQuality}); err != nil {
		h.logger.Error("encode preview failed", zap.Error(err))
		response.Internal(c, "failed to encode preview")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

type startRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// Start handles POST /studio/recording/start. An empty body records for
// the default duration.
func (h *Handler) Start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if req.DurationSeconds < 0 {
		response.BadRequest(c, "duration_seconds must not be negative")
		return
	}
	st, ok := h.studio(c)
	if !ok {
		return
	}
	if err := st.StartRecording(time.Duration(req.DurationSeconds) * time.Second); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, st.Status())
}

func (h *Handler) control(c *gin.Context, op func(*studio.Studio) error) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	if err := op(st); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, st.Status())
}

// Pause handles POST /studio/recording/pause.
func (h *Handler) Pause(c *gin.Context) { h.control(c, (*studio.Studio).Pause) }

// Resume handles POST /studio/recording/resume.
func (h *Handler) Resume(c *gin.Context) { h.control(c, (*studio.Studio).Resume) }

// Stop handles POST /studio/recording/stop. Saving continues in the
// background and is reported over the event stream.
func (h *Handler) Stop(c *gin.Context) { h.control(c, (*studio.Studio).StopRecording) }

// RetrySave handles POST /studio/recording/retry-save.
func (h *Handler) RetrySave(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	rec, err := st.RetrySave(c.Request.Context())
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.Created(c, rec)
}

// Discard handles POST /studio/recording/discard.
func (h *Handler) Discard(c *gin.Context) {
	st, ok := h.studio(c)
	if !ok {
		return
	}
	if err := st.DiscardPending(); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.NoContent(c)
}
