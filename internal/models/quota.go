package models

import (
	"time"

	"github.com/google/uuid"
)

// UserQuota is a user's tier and live usage counters.
type UserQuota struct {
	UserID     uuid.UUID `json:"user_id"`
	Tier       string    `json:"tier"`
	UsedBytes  int64     `json:"used_bytes"`
	VideoCount int       `json:"video_count"`
	LastUpdate time.Time `json:"last_update"`
}
