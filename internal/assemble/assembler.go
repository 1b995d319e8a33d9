package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"splice/internal/artifact"
	"splice/internal/logging"
	"splice/internal/render"
	"splice/internal/timeline"
)

// Part is one artifact's contribution to the assembled timeline, in order.
// Transition and Overlap describe how the part joins the part before it.
type Part struct {
	Index      int
	Artifact   artifact.Artifact
	Transition timeline.Transition
	Overlap    time.Duration
	Duration   time.Duration
}

// Plan is the resolved assembly order: every part, its join with the
// previous part, and the expected output duration.
type Plan struct {
	Media         timeline.Media
	Parts         []Part
	Skipped       []int
	TotalDuration time.Duration
}

// Options control how missing slots are treated.
type Options struct {
	// SkipMissing drops failed slots and logs a gap instead of failing the
	// whole assembly. Off by default: silent gaps must be opted into.
	SkipMissing bool
	Logger      *slog.Logger
}

// IncompleteTimelineError reports assembly attempted with missing required
// artifacts and no skip policy configured.
type IncompleteTimelineError struct {
	Missing []int
}

func (e *IncompleteTimelineError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, idx := range e.Missing {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return "incomplete timeline: missing artifacts for segments " + strings.Join(parts, ", ")
}

// BuildPlan resolves the ordered slots from a render pass into an assembly
// plan. Slots that carry errors either fail the plan with
// IncompleteTimelineError or, under SkipMissing, are dropped with their
// boundary degraded to a hard join.
func BuildPlan(edl *timeline.EDL, slots []render.Slot, opts Options) (*Plan, error) {
	logger := logging.NewComponentLogger(opts.Logger, "assemble")

	var missing []int
	for _, slot := range slots {
		if slot.Err != nil || slot.Artifact.Path == "" {
			missing = append(missing, slot.Index)
		}
	}
	sort.Ints(missing)

	if len(missing) > 0 && !opts.SkipMissing {
		return nil, &IncompleteTimelineError{Missing: missing}
	}

	missingSet := make(map[int]struct{}, len(missing))
	for _, idx := range missing {
		missingSet[idx] = struct{}{}
		logger.Warn("skipping missing segment",
			logging.String(logging.FieldEventType, "assembly_gap"),
			logging.Int(logging.FieldSegmentIndex, idx))
	}

	plan := &Plan{Media: edl.Media, Skipped: missing}
	prevSkipped := false
	for _, slot := range slots {
		if _, skip := missingSet[slot.Index]; skip {
			prevSkipped = true
			continue
		}
		seg := edl.Segments[slot.Index]
		part := Part{
			Index:      slot.Index,
			Artifact:   slot.Artifact,
			Transition: seg.Transition,
			Overlap:    seg.Transition.Overlap(),
			Duration:   seg.OutputDuration(),
		}
		if len(plan.Parts) == 0 || prevSkipped {
			// No predecessor to blend with; degrade to a hard join.
			part.Transition = timeline.Transition{Kind: timeline.TransitionCut}
			part.Overlap = 0
		}
		prevSkipped = false
		plan.Parts = append(plan.Parts, part)
	}

	for i, part := range plan.Parts {
		plan.TotalDuration += part.Duration
		if i > 0 {
			plan.TotalDuration -= part.Overlap
		}
	}
	return plan, nil
}

// Writer consumes assembly parts in timeline order. Implementations that
// stream (playlists, pipes) emit as parts arrive; batch implementations
// may buffer until Close.
type Writer interface {
	WritePart(ctx context.Context, part Part) error
	Close(ctx context.Context) error
}

// Assemble feeds the plan's parts to the writer in order and closes it.
func Assemble(ctx context.Context, plan *Plan, w Writer) error {
	for _, part := range plan.Parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.WritePart(ctx, part); err != nil {
			return fmt.Errorf("assemble part %d: %w", part.Index, err)
		}
	}
	if err := w.Close(ctx); err != nil {
		return fmt.Errorf("finalize assembly: %w", err)
	}
	return nil
}
