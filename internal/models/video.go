package models

import (
	"time"

	"github.com/google/uuid"
)

// Video MIME types produced by the encoders.
const (
	MimeTypeWebM  = "video/webm"
	MimeTypeMJPEG = "video/x-motion-jpeg"
)

// FilterSnapshot is the filter chain recorded with a video.
type FilterSnapshot struct {
	Blur       float64 `json:"blur"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Grayscale  float64 `json:"grayscale"`
	Sepia      float64 `json:"sepia"`
	Saturate   float64 `json:"saturate"`
	HueRotate  float64 `json:"hue_rotate"`
}

// EffectSnapshot is the effect toggles recorded with a video.
type EffectSnapshot struct {
	Vignette            bool `json:"vignette"`
	Grain               bool `json:"grain"`
	Scanlines           bool `json:"scanlines"`
	ChromaticAberration bool `json:"chromatic_aberration"`
}

// VideoRecord is a persisted recording. It exists only after a successful save.
type VideoRecord struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	ObjectKey    string         `json:"object_key"`
	URL          string         `json:"url"`
	SizeBytes    int64          `json:"size_bytes"`
	DurationMs   int64          `json:"duration_ms"`
	MimeType     string         `json:"mime_type"`
	TemplateName string         `json:"template_name"`
	Filters      FilterSnapshot `json:"filters"`
	Effects      EffectSnapshot `json:"effects"`
	Checksum     string         `json:"checksum,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
