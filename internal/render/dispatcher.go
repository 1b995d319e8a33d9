package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"splice/internal/artifact"
	"splice/internal/fingerprint"
	"splice/internal/logging"
	"splice/internal/segcache"
	"splice/internal/services"
	"splice/internal/timeline"
)

const defaultMaxParallel = 4

// DispatcherOptions tune parallelism and artifact naming.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent backend calls. Backend renders are
	// CPU/GPU-bound, so a bounded pool beats unbounded fan-out.
	MaxParallel int
	// Container is the artifact file extension handed to the backend.
	Container string
	Logger    *slog.Logger
}

// Dispatcher decides which segments render and which reuse cached artifacts.
type Dispatcher struct {
	cache       *segcache.Cache
	backend     Backend
	logger      *slog.Logger
	maxParallel int
	container   string
}

// Slot is one EDL position's outcome. Either Artifact is populated or Err
// explains why the slot is empty.
type Slot struct {
	Index       int
	Fingerprint fingerprint.Fingerprint
	Artifact    artifact.Artifact
	Reused      bool
	Err         error
}

// Failure names a segment the backend could not render.
type Failure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarizes a render pass for the caller: which indices rendered
// fresh, which were served from cache, and which failed with why.
type Report struct {
	Rendered []int         `json:"rendered"`
	Reused   []int         `json:"reused"`
	Failed   []Failure     `json:"failed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result carries the ordered slots plus the render report.
type Result struct {
	Slots  []Slot
	Report Report
}

// Complete reports whether every slot holds an artifact.
func (r *Result) Complete() bool {
	for _, slot := range r.Slots {
		if slot.Err != nil {
			return false
		}
	}
	return true
}

// NewDispatcher wires the dispatcher to its cache and backend.
func NewDispatcher(cache *segcache.Cache, backend Backend, opts DispatcherOptions) *Dispatcher {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	container := opts.Container
	if container == "" {
		container = "mkv"
	}
	return &Dispatcher{
		cache:       cache,
		backend:     backend,
		logger:      logging.NewComponentLogger(opts.Logger, "dispatcher"),
		maxParallel: maxParallel,
		container:   container,
	}
}

// RenderChanges renders the subset of the EDL the cache cannot serve and
// returns every slot in timeline order. Structural EDL errors reject the
// whole pass before any dispatch; per-segment backend failures are collected
// in the report and do not abort sibling renders. Re-running with no changes
// against a warm cache touches the backend zero times.
func (d *Dispatcher) RenderChanges(ctx context.Context, edl *timeline.EDL, changed []int) (*Result, error) {
	if err := edl.Validate(); err != nil {
		return nil, err
	}

	// Entries persisted against an older ingest of this media can never be
	// looked up again; drop them before planning the pass.
	if err := d.cache.PurgeMedia(ctx, edl.Media); err != nil {
		d.logger.Warn("failed to purge superseded media entries",
			logging.String("media_id", edl.Media.ID),
			logging.Error(err))
	}

	start := time.Now()
	changedSet := make(map[int]struct{}, len(changed))
	for _, idx := range changed {
		changedSet[idx] = struct{}{}
	}

	// Fingerprints and boundary contexts are computed up front so every
	// worker sees immutable input.
	count := len(edl.Segments)
	fps := make([]fingerprint.Fingerprint, count)
	boundaries := make([]*timeline.Segment, count)
	for i, seg := range edl.Segments {
		if i > 0 && seg.Transition.CouplesPredecessor() {
			pred := edl.Segments[i-1]
			boundaries[i] = &pred
		}
		fps[i] = fingerprint.Compute(edl.Media, seg, fingerprint.BoundaryContext{Predecessor: boundaries[i]})
	}

	slots := make([]Slot, count)
	var toRender []int
	for i := range edl.Segments {
		slots[i] = Slot{Index: i, Fingerprint: fps[i]}

		_, dirty := changedSet[i]
		neighborDirty := false
		if i > 0 && edl.Segments[i].Transition.CouplesPredecessor() {
			_, neighborDirty = changedSet[i-1]
		}
		art, hit := d.cache.Lookup(fps[i])
		if hit && !dirty && !neighborDirty {
			slots[i].Artifact = art
			slots[i].Reused = true
			continue
		}
		if hit {
			// Explicitly dirtied slots bypass the cached entry; drop it so
			// the single-flight hit recheck cannot serve it either.
			if err := d.cache.Invalidate(ctx, fps[i]); err != nil {
				d.logger.Warn("failed to invalidate dirty entry",
					logging.String(logging.FieldFingerprint, fps[i].Short()),
					logging.Error(err))
			}
		}
		toRender = append(toRender, i)
	}

	d.logger.Info("render pass planned",
		logging.String(logging.FieldEventType, "render_plan"),
		logging.Int("segments", count),
		logging.Int("to_render", len(toRender)),
		logging.Int("reused", count-len(toRender)))

	sem := make(chan struct{}, d.maxParallel)
	var wg sync.WaitGroup
	for _, idx := range toRender {
		idx := idx
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				slots[idx].Err = ctx.Err()
				return
			}
			d.renderSlot(ctx, edl, &slots[idx], boundaries[idx])
		}()
	}
	wg.Wait()

	result := &Result{Slots: slots}
	result.Report = d.buildReport(slots, start)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Dispatcher) renderSlot(ctx context.Context, edl *timeline.EDL, slot *Slot, boundary *timeline.Segment) {
	ctx = services.WithSegmentIndex(ctx, slot.Index)
	req := Request{
		Media:       edl.Media,
		Segment:     edl.Segments[slot.Index],
		Predecessor: boundary,
		Index:       slot.Index,
		Fingerprint: slot.Fingerprint,
		OutputPath:  d.cache.ArtifactPath(slot.Fingerprint, d.container),
	}

	art, fresh, err := d.cache.RenderOnce(ctx, slot.Fingerprint, edl.Media, func(ctx context.Context) (artifact.Artifact, error) {
		return d.backend.RenderSegment(ctx, req)
	})
	if err != nil {
		slot.Err = &BackendError{Index: slot.Index, Fingerprint: slot.Fingerprint, Err: err}
		logging.WithContext(ctx, d.logger).Error("segment render failed",
			logging.String(logging.FieldEventType, "render_failure"),
			logging.String(logging.FieldFingerprint, slot.Fingerprint.Short()),
			logging.Error(err))
		return
	}
	slot.Artifact = art
	slot.Reused = !fresh
}

func (d *Dispatcher) buildReport(slots []Slot, start time.Time) Report {
	report := Report{Elapsed: time.Since(start)}
	for _, slot := range slots {
		switch {
		case slot.Err != nil:
			report.Failed = append(report.Failed, Failure{Index: slot.Index, Reason: slot.Err.Error()})
		case slot.Reused:
			report.Reused = append(report.Reused, slot.Index)
		default:
			report.Rendered = append(report.Rendered, slot.Index)
		}
	}
	return report
}
