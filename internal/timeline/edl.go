package timeline

import (
	"fmt"
	"strings"
	"time"
)

// Media identifies the source footage an EDL cuts from. Version changes
// whenever the underlying file is re-ingested, which invalidates every
// fingerprint derived from the previous version.
type Media struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// EDL is an ordered, validated plan of segments over one source media.
// An EDL is copy-on-write: Apply derives a new value, it never mutates.
type EDL struct {
	Media    Media     `json:"media"`
	Segments []Segment `json:"segments"`
}

// Problem describes one structural defect found during validation.
type Problem struct {
	Index  int
	Reason string
}

// InvalidEDLError reports every structural defect in an EDL. The engine
// rejects the whole EDL before dispatching any render when validation fails.
type InvalidEDLError struct {
	Problems []Problem
}

func (e *InvalidEDLError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid EDL"
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Index < 0 {
			parts = append(parts, p.Reason)
			continue
		}
		parts = append(parts, fmt.Sprintf("segment %d: %s", p.Index, p.Reason))
	}
	return "invalid EDL: " + strings.Join(parts, "; ")
}

// Validate checks segment-local parameters plus the structural invariants:
// segments are time-ordered over the source media, no gaps, and adjacent
// segments overlap by exactly the later segment's transition overlap.
func (e *EDL) Validate() error {
	var problems []Problem

	if strings.TrimSpace(e.Media.ID) == "" {
		problems = append(problems, Problem{Index: -1, Reason: "media identity is empty"})
	}
	if len(e.Segments) == 0 {
		problems = append(problems, Problem{Index: -1, Reason: "no segments"})
	}

	for i, seg := range e.Segments {
		if err := seg.Validate(); err != nil {
			problems = append(problems, Problem{Index: i, Reason: err.Error()})
			continue
		}
		if i == 0 {
			if seg.Transition.Overlap() > 0 {
				problems = append(problems, Problem{Index: 0, Reason: "first segment has no predecessor to transition from"})
			}
			continue
		}
		prev := e.Segments[i-1]
		if seg.Start < prev.Start {
			problems = append(problems, Problem{Index: i, Reason: "segments are not time-ordered"})
			continue
		}
		want := seg.Transition.Overlap()
		got := prev.End - seg.Start
		switch {
		case got < 0:
			problems = append(problems, Problem{Index: i, Reason: fmt.Sprintf("gap of %s after previous segment", -got)})
		case got != want:
			problems = append(problems, Problem{Index: i, Reason: fmt.Sprintf("overlaps previous segment by %s, transition declares %s", got, want)})
		}
	}

	if len(problems) > 0 {
		return &InvalidEDLError{Problems: problems}
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (e *EDL) Clone() *EDL {
	out := &EDL{Media: e.Media}
	if e.Segments != nil {
		out.Segments = make([]Segment, len(e.Segments))
		for i, seg := range e.Segments {
			out.Segments[i] = seg.clone()
		}
	}
	return out
}

// OutputDuration returns the assembled timeline's total length: the sum of
// segment output durations minus each boundary's transition overlap.
func (e *EDL) OutputDuration() time.Duration {
	var total time.Duration
	for i, seg := range e.Segments {
		total += seg.OutputDuration()
		if i > 0 {
			total -= seg.Transition.Overlap()
		}
	}
	return total
}
