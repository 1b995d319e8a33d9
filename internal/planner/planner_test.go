package planner

import (
	"context"
	"testing"
	"time"

	"splice/internal/analysis"
	"splice/internal/intent"
	"splice/internal/logging"
	"splice/internal/timeline"
)

func testSource(duration time.Duration) analysis.Source {
	return analysis.Source{
		Media:    timeline.Media{ID: "clip", Version: "v1", Path: "/media/clip.mkv"},
		Duration: duration,
	}
}

func TestCompileProducesValidEDL(t *testing.T) {
	profile, err := intent.ProfileFor("cinematic")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	vision := analysis.VisionFeatures{
		SceneChanges: []time.Duration{10 * time.Second, 25 * time.Second, 40 * time.Second},
	}

	edl, err := Compile(testSource(time.Minute), vision, analysis.AudioFeatures{}, profile)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := edl.Validate(); err != nil {
		t.Fatalf("compiled EDL invalid: %v", err)
	}
	// Three scene cuts plus one pacing cut in the long tail after 40s.
	if len(edl.Segments) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(edl.Segments))
	}
	if edl.Segments[0].Transition.Kind != "" && edl.Segments[0].Transition.Kind != timeline.TransitionNone {
		t.Fatalf("first segment declares a transition: %+v", edl.Segments[0].Transition)
	}
	for i := 1; i < len(edl.Segments); i++ {
		seg := edl.Segments[i]
		if seg.Transition.Kind != timeline.TransitionCrossfade {
			t.Fatalf("segment %d transition = %s, want crossfade", i, seg.Transition.Kind)
		}
		// Crossfade cuts reach back into the predecessor by the blend
		// duration.
		if got := edl.Segments[i-1].End - seg.Start; got != profile.Transition.Duration {
			t.Fatalf("segment %d source overlap = %v, want %v", i, got, profile.Transition.Duration)
		}
	}
}

func TestCompileAppliesProfileParameters(t *testing.T) {
	profile, err := intent.ProfileFor("energetic")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	vision := analysis.VisionFeatures{SceneChanges: []time.Duration{5 * time.Second}}

	edl, err := Compile(testSource(10*time.Second), vision, analysis.AudioFeatures{}, profile)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for i, seg := range edl.Segments {
		if seg.Speed != profile.Speed {
			t.Fatalf("segment %d speed = %v, want %v", i, seg.Speed, profile.Speed)
		}
		if seg.Grade.Name != profile.Grade.Name {
			t.Fatalf("segment %d grade = %q, want %q", i, seg.Grade.Name, profile.Grade.Name)
		}
		if len(seg.Effects) != len(profile.Effects) {
			t.Fatalf("segment %d effects = %v", i, seg.Effects)
		}
	}

	// Profile parameters must be copies, not shared maps.
	edl.Segments[0].Effects[0].Params["amount"] = 99
	if profile.Effects[0].Params["amount"] == 99 {
		t.Fatal("segment effect params alias the profile's map")
	}
}

func TestCompileDropsCutsTooCloseTogether(t *testing.T) {
	profile, err := intent.ProfileFor("documentary")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	// Scene changes 1s apart, far below the 4s minimum.
	vision := analysis.VisionFeatures{
		SceneChanges: []time.Duration{10 * time.Second, 11 * time.Second, 12 * time.Second},
	}

	edl, err := Compile(testSource(30*time.Second), vision, analysis.AudioFeatures{}, profile)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(edl.Segments) != 2 {
		t.Fatalf("expected 2 segments after pruning, got %d", len(edl.Segments))
	}
	for i := 1; i < len(edl.Segments); i++ {
		gap := edl.Segments[i].End - edl.Segments[i].Start
		if gap < profile.MinSegment {
			t.Fatalf("segment %d shorter than minimum: %v", i, gap)
		}
	}
}

func TestCompilePacesLongStretches(t *testing.T) {
	profile, err := intent.ProfileFor("documentary")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}

	// No scene changes at all over two minutes: pacing alone must cut.
	edl, err := Compile(testSource(2*time.Minute), analysis.VisionFeatures{}, analysis.AudioFeatures{}, profile)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(edl.Segments) < 2 {
		t.Fatalf("pacing produced no cuts: %d segments", len(edl.Segments))
	}
	if err := edl.Validate(); err != nil {
		t.Fatalf("paced EDL invalid: %v", err)
	}
}

func TestCompilePacingSnapsToEnergyPeaks(t *testing.T) {
	profile, err := intent.ProfileFor("documentary")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	// First pacing cut lands at 12s; a peak sits 1s away, inside the 2s
	// snap tolerance.
	audio := analysis.AudioFeatures{EnergyPeaks: []time.Duration{13 * time.Second}}

	edl, err := Compile(testSource(2*time.Minute), analysis.VisionFeatures{}, audio, profile)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := edl.Segments[0].End; got != 13*time.Second {
		t.Fatalf("first cut = %v, want snapped 13s", got)
	}
}

func TestCompileRejectsTinySource(t *testing.T) {
	profile, err := intent.ProfileFor("documentary")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}
	if _, err := Compile(testSource(time.Second), analysis.VisionFeatures{}, analysis.AudioFeatures{}, profile); err == nil {
		t.Fatal("expected error for source shorter than minimum segment")
	}
}

func TestPlannerPlanEndToEnd(t *testing.T) {
	profile, err := intent.ProfileFor("social")
	if err != nil {
		t.Fatalf("ProfileFor: %v", err)
	}

	p := &Planner{
		Vision: analysis.IntervalVision{Interval: 4 * time.Second},
		Audio:  analysis.PulseAudio{Interval: 4 * time.Second, Phase: 2 * time.Second},
		Logger: logging.NewNop(),
	}
	edl, err := p.Plan(context.Background(), testSource(30*time.Second), profile)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := edl.Validate(); err != nil {
		t.Fatalf("planned EDL invalid: %v", err)
	}
	if len(edl.Segments) < 3 {
		t.Fatalf("expected several segments, got %d", len(edl.Segments))
	}
}
