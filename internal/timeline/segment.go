package timeline

import (
	"fmt"
	"time"
)

// Effect is one entry in a segment's ordered effect chain.
type Effect struct {
	Type   string             `json:"type"`
	Params map[string]float64 `json:"params,omitempty"`
}

// ColorGrade names a grading profile, optionally parameterized.
type ColorGrade struct {
	Name   string             `json:"name,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Segment is the atomic editable unit of the timeline: a source-media time
// range plus every parameter that affects its rendered pixels and audio.
// Segments are treated as immutable once part of a validated EDL; edits
// derive a new EDL version rather than mutating in place.
type Segment struct {
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	Transition Transition    `json:"transition"`
	Effects    []Effect      `json:"effects,omitempty"`
	Grade      ColorGrade    `json:"grade"`
	Speed      float64       `json:"speed"`
}

// SourceDuration returns the span of source media the segment covers.
func (s Segment) SourceDuration() time.Duration {
	return s.End - s.Start
}

// OutputDuration returns the segment's length in the assembled output after
// applying the playback-rate multiplier.
func (s Segment) OutputDuration() time.Duration {
	if s.Speed <= 0 {
		return 0
	}
	return time.Duration(float64(s.SourceDuration()) / s.Speed)
}

// Validate checks the segment's own parameters, ignoring neighbors.
func (s Segment) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("start %s is negative", s.Start)
	}
	if s.End <= s.Start {
		return fmt.Errorf("end %s is not after start %s", s.End, s.Start)
	}
	if s.Speed <= 0 {
		return fmt.Errorf("speed %g must be positive", s.Speed)
	}
	for i, effect := range s.Effects {
		if effect.Type == "" {
			return fmt.Errorf("effect %d has no type", i)
		}
	}
	if err := s.Transition.Validate(); err != nil {
		return err
	}
	if overlap := s.Transition.Overlap(); overlap >= s.OutputDuration() && overlap > 0 {
		return fmt.Errorf("transition overlap %s consumes the entire segment", overlap)
	}
	return nil
}

// clone returns a deep copy so derived EDL versions never share mutable state.
func (s Segment) clone() Segment {
	out := s
	if s.Effects != nil {
		out.Effects = make([]Effect, len(s.Effects))
		for i, effect := range s.Effects {
			out.Effects[i] = Effect{Type: effect.Type, Params: cloneParams(effect.Params)}
		}
	}
	out.Grade = ColorGrade{Name: s.Grade.Name, Params: cloneParams(s.Grade.Params)}
	return out
}

func cloneParams(params map[string]float64) map[string]float64 {
	if params == nil {
		return nil
	}
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
