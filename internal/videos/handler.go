// Package videos serves a user's saved videos, quota and the template
// catalogue, and stores video metadata in PostgreSQL or SQLite.
package videos

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/apierr"
	"github.com/aura-webinar/videocreator/internal/middleware"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/pkg/response"
)

// Libraries resolves a user's video library.
type Libraries interface {
	Library(ctx context.Context, userID uuid.UUID) (*studio.Library, error)
}

// Handler handles video, quota and template endpoints.
type Handler struct {
	libs      Libraries
	templates *templates.Registry
	logger    *zap.Logger
}

// NewHandler creates a videos handler.
func NewHandler(libs Libraries, reg *templates.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{libs: libs, templates: reg, logger: logger}
}

// Register mounts the routes on an authenticated group.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/videos", h.List)
	r.DELETE("/videos/:id", h.Delete)
	r.GET("/videos/:id/download-url", h.DownloadURL)
	r.GET("/quota", h.Quota)
	r.POST("/quota/upgrade", h.Upgrade)
	r.GET("/templates", h.Templates)
}

func (h *Handler) library(c *gin.Context) (*studio.Library, bool) {
	lib, err := h.libs.Library(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		apierr.Write(c, h.logger, err)
		return nil, false
	}
	return lib, true
}

// List handles GET /videos.
func (h *Handler) List(c *gin.Context) {
	lib, ok := h.library(c)
	if !ok {
		return
	}
	list, err := lib.ListVideos(c.Request.Context())
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"videos": list, "stats": lib.Stats()})
}

// Delete handles DELETE /videos/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	lib, ok := h.library(c)
	if !ok {
		return
	}
	if err := lib.DeleteVideo(c.Request.Context(), id); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// DownloadURL handles GET /videos/:id/download-url.
func (h *Handler) DownloadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	lib, ok := h.library(c)
	if !ok {
		return
	}
	url, err := lib.DownloadURL(c.Request.Context(), id)
	if err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"download_url": url})
}

// Quota handles GET /quota.
func (h *Handler) Quota(c *gin.Context) {
	lib, ok := h.library(c)
	if !ok {
		return
	}
	response.OK(c, lib.Stats())
}

type upgradeRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// Upgrade handles POST /quota/upgrade.
func (h *Handler) Upgrade(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	lib, ok := h.library(c)
	if !ok {
		return
	}
	if _, err := lib.UpgradeTier(c.Request.Context(), quota.TierName(req.Tier)); err != nil {
		apierr.Write(c, h.logger, err)
		return
	}
	response.OK(c, lib.Stats())
}

// Templates handles GET /templates.
func (h *Handler) Templates(c *gin.Context) {
	response.OK(c, h.templates.All())
}
