// Package session holds the mutable compositor settings of one studio:
// filter chain, effect flags, text overlays and background.
package session

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// CustomTemplate is the template name recorded when no template was applied.
const CustomTemplate = "Custom"

var ErrInvalidOverlay = errors.New("session: invalid text overlay")

// Filters is the filter chain, applied in field order by the compositor.
// Filters run on the frame after it is scaled to the output size, so Blur
// is a radius in output pixels.
type Filters struct {
	Blur       float64 `json:"blur" toml:"blur" yaml:"blur"`                   // output px, 0..20
	Brightness float64 `json:"brightness" toml:"brightness" yaml:"brightness"` // percent, 0..200
	Contrast   float64 `json:"contrast" toml:"contrast" yaml:"contrast"`       // percent, 0..200
	Grayscale  float64 `json:"grayscale" toml:"grayscale" yaml:"grayscale"`    // percent, 0..100
	Sepia      float64 `json:"sepia" toml:"sepia" yaml:"sepia"`                // percent, 0..100
	Saturate   float64 `json:"saturate" toml:"saturate" yaml:"saturate"`       // percent, 0..200
	HueRotate  float64 `json:"hue_rotate" toml:"hue_rotate" yaml:"hue_rotate"` // degrees, -360..360
}

// DefaultFilters is the identity filter chain.
func DefaultFilters() Filters {
	return Filters{Brightness: 100, Contrast: 100, Saturate: 100}
}

// Clamp returns f with every value forced into its valid range. A NaN
// value is replaced by its identity value.
func (f Filters) Clamp() Filters {
	id := DefaultFilters()
	f.Blur = clamp(f.Blur, 0, 20, id.Blur)
	f.Brightness = clamp(f.Brightness, 0, 200, id.Brightness)
	f.Contrast = clamp(f.Contrast, 0, 200, id.Contrast)
	f.Grayscale = clamp(f.Grayscale, 0, 100, id.Grayscale)
	f.Sepia = clamp(f.Sepia, 0, 100, id.Sepia)
	f.Saturate = clamp(f.Saturate, 0, 200, id.Saturate)
	f.HueRotate = clamp(f.HueRotate, -360, 360, id.HueRotate)
	return f
}

// Effects are the post-processing toggles, applied in field order.
type Effects struct {
	Vignette            bool `json:"vignette" toml:"vignette" yaml:"vignette"`
	Grain               bool `json:"grain" toml:"grain" yaml:"grain"`
	Scanlines           bool `json:"scanlines" toml:"scanlines" yaml:"scanlines"`
	ChromaticAberration bool `json:"chromatic_aberration" toml:"chromatic_aberration" yaml:"chromatic_aberration"`
}

// Position anchors a text overlay on the output surface.
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionCenter Position = "center"
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
)

// Animation modulates an overlay over wall-clock time.
type Animation string

const (
	AnimationNone  Animation = "none"
	AnimationFade  Animation = "fade"
	AnimationSlide Animation = "slide"
)

// TextOverlay is one line of text drawn over the composed frame.
type TextOverlay struct {
	Text       string    `json:"text" toml:"text" yaml:"text"`
	Position   Position  `json:"position" toml:"position" yaml:"position"`
	FontSize   int       `json:"font_size" toml:"font_size" yaml:"font_size"`
	FontFamily string    `json:"font_family" toml:"font_family" yaml:"font_family"`
	Color      string    `json:"color" toml:"color" yaml:"color"`
	Animation  Animation `json:"animation,omitempty" toml:"animation" yaml:"animation"`
	Shadow     bool      `json:"shadow" toml:"shadow" yaml:"shadow"`
}

// Validate rejects overlays the compositor cannot place.
func (o TextOverlay) Validate() error {
	switch o.Position {
	case PositionTop, PositionBottom, PositionCenter, PositionLeft, PositionRight:
	default:
		return fmt.Errorf("%w: unknown position %q", ErrInvalidOverlay, o.Position)
	}
	switch o.Animation {
	case "", AnimationNone, AnimationFade, AnimationSlide:
	default:
		return fmt.Errorf("%w: unknown animation %q", ErrInvalidOverlay, o.Animation)
	}
	if o.FontSize <= 0 || o.FontSize > 400 {
		return fmt.Errorf("%w: font size %d out of range", ErrInvalidOverlay, o.FontSize)
	}
	return nil
}

// BackgroundType selects the background pass.
type BackgroundType string

const (
	BackgroundNone     BackgroundType = ""
	BackgroundGradient BackgroundType = "gradient"
	BackgroundPattern  BackgroundType = "pattern"
)

// Background describes what is painted beneath the live frame.
type Background struct {
	Type   BackgroundType `json:"type" toml:"type" yaml:"type"`
	Colors []string       `json:"colors,omitempty" toml:"colors" yaml:"colors"`
	Style  string         `json:"style,omitempty" toml:"style" yaml:"style"`
}

func (b Background) clone() Background {
	b.Colors = append([]string(nil), b.Colors...)
	return b
}

// Snapshot is an immutable copy of the session taken once per tick.
type Snapshot struct {
	Template   string        `json:"template"`
	Filters    Filters       `json:"filters"`
	Effects    Effects       `json:"effects"`
	Overlays   []TextOverlay `json:"overlays"`
	Background Background    `json:"background"`
	// Seed freezes the procedural background for the lifetime of the session.
	Seed int64 `json:"-"`
}

// TemplateName returns the applied template or CustomTemplate.
func (s Snapshot) TemplateName() string {
	if s.Template == "" {
		return CustomTemplate
	}
	return s.Template
}

// Session is safe for concurrent use: the compositor reads snapshots
// while API handlers edit fields.
type Session struct {
	mu         sync.RWMutex
	template   string
	filters    Filters
	effects    Effects
	overlays   []TextOverlay
	background Background
	seed       int64
}

// New returns a session with identity filters and no overlays.
func New() *Session {
	return &Session{
		filters: DefaultFilters(),
		seed:    rand.Int63(),
	}
}

// Snapshot copies the current settings.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Template:   s.template,
		Filters:    s.filters,
		Effects:    s.effects,
		Overlays:   append([]TextOverlay(nil), s.overlays...),
		Background: s.background.clone(),
		Seed:       s.seed,
	}
}

// Overwrite replaces every template-controlled field at once.
func (s *Session) Overwrite(template string, f Filters, e Effects, overlays []TextOverlay, bg Background) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = template
	s.filters = f.Clamp()
	s.effects = e
	s.overlays = append([]TextOverlay(nil), overlays...)
	s.background = bg.clone()
}

// SetFilters overrides the filter chain, keeping the applied template name.
func (s *Session) SetFilters(f Filters) {
	s.mu.Lock()
	s.filters = f.Clamp()
	s.mu.Unlock()
}

// SetEffects overrides the effect flags.
func (s *Session) SetEffects(e Effects) {
	s.mu.Lock()
	s.effects = e
	s.mu.Unlock()
}

// SetOverlays replaces the overlay list after validating every entry.
func (s *Session) SetOverlays(overlays []TextOverlay) error {
	for i, o := range overlays {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("overlay %d: %w", i, err)
		}
	}
	s.mu.Lock()
	s.overlays = append([]TextOverlay(nil), overlays...)
	s.mu.Unlock()
	return nil
}

// SetBackground replaces the background settings.
func (s *Session) SetBackground(bg Background) {
	s.mu.Lock()
	s.background = bg.clone()
	s.mu.Unlock()
}

func clamp(v, lo, hi, nan float64) float64 {
	if math.IsNaN(v) {
		return nan
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
