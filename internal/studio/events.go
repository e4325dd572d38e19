package studio

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/videocreator/internal/models"
)

// EventType names a studio event on the wire.
type EventType string

const (
	EventStateChanged   EventType = "state_changed"
	EventCountdown      EventType = "countdown"
	EventUploadProgress EventType = "upload_progress"
	EventVideoSaved     EventType = "video_saved"
	EventVideoDeleted   EventType = "video_deleted"
	EventTierChanged    EventType = "tier_changed"
	EventError          EventType = "error"
)

// Event is everything the studio reports to its observer.
type Event struct {
	Type      EventType           `json:"type"`
	UserID    uuid.UUID           `json:"user_id"`
	From      string              `json:"from,omitempty"`
	State     string              `json:"state,omitempty"`
	Trigger   string              `json:"trigger,omitempty"`
	Remaining int                 `json:"remaining,omitempty"`
	Percent   int                 `json:"percent,omitempty"`
	Video     *models.VideoRecord `json:"video,omitempty"`
	VideoID   uuid.UUID           `json:"video_id,omitempty"`
	Tier      string              `json:"tier,omitempty"`
	Error     string              `json:"error,omitempty"`
	At        time.Time           `json:"at"`
}
