package intent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"splice/internal/services"
	"splice/internal/timeline"
)

// Style names a built-in editing style.
type Style string

const (
	StyleCinematic   Style = "cinematic"
	StyleEnergetic   Style = "energetic"
	StyleDocumentary Style = "documentary"
	StyleSocial      Style = "social"
)

// Label returns the style name in display casing.
func (s Style) Label() string {
	return cases.Title(language.Und).String(string(s))
}

// Profile is the set of edit parameters a style implies. The planner applies
// these uniformly across the segments it cuts.
type Profile struct {
	Style         Style
	TargetSegment time.Duration
	MinSegment    time.Duration
	Transition    timeline.Transition
	Grade         timeline.ColorGrade
	Speed         float64
	Effects       []timeline.Effect
}

var profiles = map[Style]Profile{
	StyleCinematic: {
		Style:         StyleCinematic,
		TargetSegment: 8 * time.Second,
		MinSegment:    2 * time.Second,
		Transition: timeline.Transition{
			Kind:     timeline.TransitionCrossfade,
			Duration: 750 * time.Millisecond,
		},
		Grade: timeline.ColorGrade{Name: "cinematic"},
		Speed: 1.0,
	},
	StyleEnergetic: {
		Style:         StyleEnergetic,
		TargetSegment: 2 * time.Second,
		MinSegment:    500 * time.Millisecond,
		Transition:    timeline.Transition{Kind: timeline.TransitionCut},
		Grade:         timeline.ColorGrade{Name: "warm"},
		Speed:         1.25,
		Effects: []timeline.Effect{
			{Type: "sharpen", Params: map[string]float64{"amount": 0.8}},
		},
	},
	StyleDocumentary: {
		Style:         StyleDocumentary,
		TargetSegment: 12 * time.Second,
		MinSegment:    4 * time.Second,
		Transition:    timeline.Transition{Kind: timeline.TransitionCut},
		Speed:         1.0,
	},
	StyleSocial: {
		Style:         StyleSocial,
		TargetSegment: 3 * time.Second,
		MinSegment:    time.Second,
		Transition: timeline.Transition{
			Kind:      timeline.TransitionWipe,
			Duration:  300 * time.Millisecond,
			Direction: timeline.WipeLeft,
		},
		Grade: timeline.ColorGrade{
			Params: map[string]float64{"saturation": 1.3, "contrast": 1.1},
		},
		Speed: 1.1,
		Effects: []timeline.Effect{
			{Type: "vignette", Params: map[string]float64{"angle": 0.4}},
		},
	},
}

// Styles returns the built-in style names in stable order.
func Styles() []Style {
	names := make([]Style, 0, len(profiles))
	for style := range profiles {
		names = append(names, style)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ProfileFor resolves a style name, case-insensitively, to its profile.
func ProfileFor(name string) (Profile, error) {
	style := Style(strings.ToLower(strings.TrimSpace(name)))
	profile, ok := profiles[style]
	if !ok {
		known := make([]string, 0, len(profiles))
		for _, s := range Styles() {
			known = append(known, string(s))
		}
		return Profile{}, services.Wrap(services.ErrValidation, "intent", "profile",
			fmt.Sprintf("unknown style %q (known: %s)", name, strings.Join(known, ", ")), nil)
	}
	return profile, nil
}
