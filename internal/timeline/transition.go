package timeline

import (
	"fmt"
	"time"
)

// TransitionKind identifies how a segment joins its predecessor.
type TransitionKind string

const (
	TransitionNone      TransitionKind = "none"
	TransitionCut       TransitionKind = "cut"
	TransitionCrossfade TransitionKind = "crossfade"
	TransitionWipe      TransitionKind = "wipe"
)

// WipeDirection selects the sweep direction of a wipe transition.
type WipeDirection string

const (
	WipeLeft  WipeDirection = "left"
	WipeRight WipeDirection = "right"
	WipeUp    WipeDirection = "up"
	WipeDown  WipeDirection = "down"
)

// Transition describes how a segment blends with the segment before it.
// The zero value is equivalent to TransitionNone.
type Transition struct {
	Kind      TransitionKind `json:"kind"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Direction WipeDirection  `json:"direction,omitempty"`
}

// Overlap returns how much of the predecessor's tail this transition consumes
// in the assembled output. Hard joins (none, cut) overlap nothing.
func (t Transition) Overlap() time.Duration {
	switch t.Kind {
	case TransitionCrossfade, TransitionWipe:
		return t.Duration
	default:
		return 0
	}
}

// CouplesPredecessor reports whether the predecessor's parameters take part in
// rendering this segment's boundary frames. Only a plain join (none or the
// zero value) is decoupled; everything else folds the neighbor into the
// segment's cache identity.
func (t Transition) CouplesPredecessor() bool {
	return t.Kind != TransitionNone && t.Kind != ""
}

// Validate checks internal consistency of the transition descriptor.
func (t Transition) Validate() error {
	switch t.Kind {
	case TransitionNone, TransitionCut, "":
		if t.Duration != 0 {
			return fmt.Errorf("transition %q cannot carry a duration", t.kindLabel())
		}
	case TransitionCrossfade:
		if t.Duration <= 0 {
			return fmt.Errorf("crossfade requires a positive duration")
		}
	case TransitionWipe:
		if t.Duration <= 0 {
			return fmt.Errorf("wipe requires a positive duration")
		}
		switch t.Direction {
		case WipeLeft, WipeRight, WipeUp, WipeDown:
		default:
			return fmt.Errorf("wipe direction %q is not supported", string(t.Direction))
		}
	default:
		return fmt.Errorf("transition kind %q is not supported", string(t.Kind))
	}
	return nil
}

func (t Transition) kindLabel() string {
	if t.Kind == "" {
		return string(TransitionNone)
	}
	return string(t.Kind)
}
