// Package templates is the fixed catalog of compositor presets.
package templates

import (
	"errors"
	"fmt"
	"sort"

	"github.com/aura-webinar/videocreator/internal/session"
)

// Catalog keys.
const (
	Professional = "PROFESSIONAL"
	Creative     = "CREATIVE"
	Modern       = "MODERN"
)

var ErrUnknownTemplate = errors.New("templates: unknown template")

// Template is an immutable bundle of compositor settings.
type Template struct {
	Key         string                `json:"key"`
	DisplayName string                `json:"display_name"`
	Filters     session.Filters       `json:"filters"`
	Effects     session.Effects       `json:"effects"`
	TextLayout  []session.TextOverlay `json:"text_layout"`
	Background  session.Background    `json:"background"`
}

// Registry maps template keys to templates.
type Registry struct {
	templates map[string]Template
}

// NewRegistry returns the built-in catalog.
func NewRegistry() *Registry {
	return &Registry{templates: catalog()}
}

// Lookup returns a copy of the named template.
func (r *Registry) Lookup(name string) (Template, bool) {
	t, ok := r.templates[name]
	if !ok {
		return Template{}, false
	}
	t.TextLayout = append([]session.TextOverlay(nil), t.TextLayout...)
	t.Background.Colors = append([]string(nil), t.Background.Colors...)
	return t, true
}

// Names returns the catalog keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for k := range r.templates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// All returns every template, sorted by key.
func (r *Registry) All() []Template {
	out := make([]Template, 0, len(r.templates))
	for _, name := range r.Names() {
		t, _ := r.Lookup(name)
		out = append(out, t)
	}
	return out
}

// Apply overwrites the session's filters, effects, overlays and background
// with the template's values. Later manual edits still override them.
func (r *Registry) Apply(s *session.Session, name string) error {
	t, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	s.Overwrite(t.Key, t.Filters, t.Effects, t.TextLayout, t.Background)
	return nil
}

func catalog() map[string]Template {
	withDefaults := func(apply func(*session.Filters)) session.Filters {
		f := session.DefaultFilters()
		apply(&f)
		return f
	}
	return map[string]Template{
		Professional: {
			Key:         Professional,
			DisplayName: "Professional",
			Filters: withDefaults(func(f *session.Filters) {
				f.Brightness = 105
				f.Contrast = 110
				f.Saturate = 95
				f.Blur = 0
			}),
			TextLayout: []session.TextOverlay{
				{Text: "Name", Position: session.PositionTop, FontSize: 32, FontFamily: "Arial", Color: "#ffffff", Shadow: true},
				{Text: "Position", Position: session.PositionBottom, FontSize: 24, FontFamily: "Arial", Color: "#ffffff", Shadow: true},
			},
			Background: session.Background{
				Type:   session.BackgroundGradient,
				Colors: []string{"#2c3e50", "#3498db"},
			},
		},
		Creative: {
			Key:         Creative,
			DisplayName: "Creative",
			Filters: withDefaults(func(f *session.Filters) {
				f.Brightness = 110
				f.Contrast = 120
				f.Saturate = 120
				f.HueRotate = 10
			}),
			Effects: session.Effects{Grain: true, Vignette: true},
			TextLayout: []session.TextOverlay{
				{Text: "Portfolio", Position: session.PositionCenter, FontSize: 48, FontFamily: "Georgia", Color: "#ff6b6b", Animation: session.AnimationFade},
			},
		},
		Modern: {
			Key:         Modern,
			DisplayName: "Modern",
			Filters: withDefaults(func(f *session.Filters) {
				f.Brightness = 105
				f.Contrast = 105
				f.Saturate = 100
				f.Blur = 1
			}),
			TextLayout: []session.TextOverlay{
				{Text: "Skills", Position: session.PositionLeft, FontSize: 28, FontFamily: "Helvetica", Color: "#2ecc71", Animation: session.AnimationSlide},
			},
			Background: session.Background{
				Type:  session.BackgroundPattern,
				Style: "geometric",
			},
		},
	}
}
