package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FilterOverrides sets individual filters; nil fields keep the current value.
type FilterOverrides struct {
	Blur       *float64 `toml:"blur" yaml:"blur"`
	Brightness *float64 `toml:"brightness" yaml:"brightness"`
	Contrast   *float64 `toml:"contrast" yaml:"contrast"`
	Grayscale  *float64 `toml:"grayscale" yaml:"grayscale"`
	Sepia      *float64 `toml:"sepia" yaml:"sepia"`
	Saturate   *float64 `toml:"saturate" yaml:"saturate"`
	HueRotate  *float64 `toml:"hue_rotate" yaml:"hue_rotate"`
}

// Preset is a file-based set of manual edits layered over a template.
type Preset struct {
	Template   string           `toml:"template" yaml:"template"`
	Filters    *FilterOverrides `toml:"filters" yaml:"filters"`
	Effects    *Effects         `toml:"effects" yaml:"effects"`
	Overlays   []TextOverlay    `toml:"overlays" yaml:"overlays"`
	Background *Background      `toml:"background" yaml:"background"`
}

// LoadPreset decodes a .toml, .yaml or .yml preset file.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	var p Preset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &p)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("preset %s: unsupported extension", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode preset %s: %w", path, err)
	}
	return &p, nil
}

// ApplyTo layers the preset's manual edits onto s. The Template field is
// not applied here; callers apply it first through the template registry.
func (p *Preset) ApplyTo(s *Session) error {
	snap := s.Snapshot()
	if p.Filters != nil {
		f := snap.Filters
		set := func(dst *float64, v *float64) {
			if v != nil {
				*dst = *v
			}
		}
		set(&f.Blur, p.Filters.Blur)
		set(&f.Brightness, p.Filters.Brightness)
		set(&f.Contrast, p.Filters.Contrast)
		set(&f.Grayscale, p.Filters.Grayscale)
		set(&f.Sepia, p.Filters.Sepia)
		set(&f.Saturate, p.Filters.Saturate)
		set(&f.HueRotate, p.Filters.HueRotate)
		s.SetFilters(f)
	}
	if p.Effects != nil {
		s.SetEffects(*p.Effects)
	}
	if len(p.Overlays) > 0 {
		if err := s.SetOverlays(p.Overlays); err != nil {
			return err
		}
	}
	if p.Background != nil {
		s.SetBackground(*p.Background)
	}
	return nil
}
