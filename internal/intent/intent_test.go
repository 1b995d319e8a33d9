package intent

import (
	"testing"

	"splice/internal/timeline"
)

func TestProfileForKnownStyles(t *testing.T) {
	for _, style := range Styles() {
		profile, err := ProfileFor(string(style))
		if err != nil {
			t.Fatalf("ProfileFor(%s): %v", style, err)
		}
		if profile.Style != style {
			t.Fatalf("profile style = %s, want %s", profile.Style, style)
		}
		if profile.TargetSegment <= 0 || profile.MinSegment <= 0 {
			t.Fatalf("%s has non-positive pacing: %+v", style, profile)
		}
		if profile.MinSegment > profile.TargetSegment {
			t.Fatalf("%s min segment exceeds target", style)
		}
		if profile.Speed <= 0 {
			t.Fatalf("%s has non-positive speed", style)
		}
		if err := profile.Transition.Validate(); err != nil {
			t.Fatalf("%s transition invalid: %v", style, err)
		}
	}
}

func TestProfileForCaseInsensitive(t *testing.T) {
	profile, err := ProfileFor("  Cinematic ")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	if profile.Style != StyleCinematic {
		t.Fatalf("style = %s, want cinematic", profile.Style)
	}
	if profile.Transition.Kind != timeline.TransitionCrossfade {
		t.Fatalf("cinematic transition = %s, want crossfade", profile.Transition.Kind)
	}
}

func TestProfileForUnknownStyle(t *testing.T) {
	if _, err := ProfileFor("vaporwave"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestStyleLabel(t *testing.T) {
	if got := StyleCinematic.Label(); got != "Cinematic" {
		t.Fatalf("Label = %q, want Cinematic", got)
	}
}
