package templates

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aura-webinar/videocreator/internal/session"
)

func TestCatalogNames(t *testing.T) {
	got := NewRegistry().Names()
	want := []string{Creative, Modern, Professional}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
}

func TestApplyProfessionalRoundTrip(t *testing.T) {
	r := NewRegistry()
	s := session.New()
	if err := r.Apply(s, Professional); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	tpl, _ := r.Lookup(Professional)
	snap := s.Snapshot()
	if snap.Filters != tpl.Filters {
		t.Fatalf("filters = %+v, want %+v", snap.Filters, tpl.Filters)
	}
	if snap.Filters.Brightness != 105 || snap.Filters.Contrast != 110 || snap.Filters.Saturate != 95 {
		t.Fatalf("unexpected professional values %+v", snap.Filters)
	}
	if snap.Template != Professional {
		t.Fatalf("template = %q", snap.Template)
	}
	if !reflect.DeepEqual(snap.Overlays, tpl.TextLayout) {
		t.Fatalf("overlays = %+v", snap.Overlays)
	}
}

func TestApplyOverwritesPreviousTemplate(t *testing.T) {
	r := NewRegistry()
	s := session.New()
	if err := r.Apply(s, Creative); err != nil {
		t.Fatal(err)
	}
	if err := r.Apply(s, Professional); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Effects.Grain || snap.Effects.Vignette {
		t.Fatalf("effects from CREATIVE leaked: %+v", snap.Effects)
	}
	if snap.Filters.HueRotate != 0 {
		t.Fatalf("hue rotate leaked: %v", snap.Filters.HueRotate)
	}
}

func TestManualEditOverridesTemplate(t *testing.T) {
	r := NewRegistry()
	s := session.New()
	if err := r.Apply(s, Modern); err != nil {
		t.Fatal(err)
	}
	f := s.Snapshot().Filters
	f.Sepia = 50
	s.SetFilters(f)
	snap := s.Snapshot()
	if snap.Filters.Sepia != 50 || snap.Filters.Blur != 1 {
		t.Fatalf("filters = %+v", snap.Filters)
	}
	if snap.Template != Modern {
		t.Fatalf("template = %q", snap.Template)
	}
}

func TestApplyUnknown(t *testing.T) {
	err := NewRegistry().Apply(session.New(), "RETRO")
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Lookup(Professional)
	a.TextLayout[0].Text = "mutated"
	a.Background.Colors[0] = "#000000"
	b, _ := r.Lookup(Professional)
	if b.TextLayout[0].Text != "Name" || b.Background.Colors[0] != "#2c3e50" {
		t.Fatal("registry mutated through Lookup result")
	}
}
