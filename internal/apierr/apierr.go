// Package apierr maps domain errors onto the HTTP response envelope.
package apierr

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/videocreator/internal/capture"
	"github.com/aura-webinar/videocreator/internal/encoder"
	"github.com/aura-webinar/videocreator/internal/persistence"
	"github.com/aura-webinar/videocreator/internal/quota"
	"github.com/aura-webinar/videocreator/internal/recorder"
	"github.com/aura-webinar/videocreator/internal/session"
	"github.com/aura-webinar/videocreator/internal/studio"
	"github.com/aura-webinar/videocreator/internal/templates"
	"github.com/aura-webinar/videocreator/pkg/response"
)

// Write sends the status matching err. Unclassified errors are logged and
// reported as 500 without their message.
func Write(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded), errors.Is(err, persistence.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, studio.ErrNotOpen):
		response.NotFound(c, err.Error())
	case errors.Is(err, recorder.ErrInvalidStateTransition),
		errors.Is(err, studio.ErrPendingArtifact),
		errors.Is(err, studio.ErrSaving),
		errors.Is(err, studio.ErrNoPending),
		errors.Is(err, studio.ErrClosed):
		response.Conflict(c, err.Error())
	case errors.Is(err, templates.ErrUnknownTemplate),
		errors.Is(err, session.ErrInvalidOverlay),
		errors.Is(err, quota.ErrUnknownTier):
		response.BadRequest(c, err.Error())
	case errors.Is(err, capture.ErrDeviceAccess):
		logger.Warn("device unavailable", zap.Error(err))
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, persistence.ErrPersistence):
		logger.Error("persistence failure", zap.Error(err))
		response.BadGateway(c, "storage unavailable")
	case errors.Is(err, encoder.ErrEncoding):
		logger.Error("encoding failure", zap.Error(err))
		response.Internal(c, "encoding failed")
	default:
		logger.Error("unhandled error", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
