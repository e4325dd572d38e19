package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/auth"
	"github.com/aura-webinar/videocreator/pkg/response"
)

// Gin context keys set by JWT.
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

// JWT requires a valid bearer token and records its user on the context.
func JWT(tokens *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Unauthorized(c, "bearer token required")
			c.Abort()
			return
		}
		claims, err := tokens.Validate(raw)
		if err != nil {
			_ = c.Error(err)
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// UserID returns the authenticated user. Only valid behind JWT.
func UserID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextUserID).(uuid.UUID)
}
