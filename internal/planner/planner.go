package planner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"splice/internal/analysis"
	"splice/internal/intent"
	"splice/internal/logging"
	"splice/internal/services"
	"splice/internal/timeline"
)

// Planner turns a probed source into an edit decision list using the
// configured analyzers.
type Planner struct {
	Vision analysis.VisionAnalyzer
	Audio  analysis.AudioAnalyzer
	Logger *slog.Logger
}

// Plan extracts features from the source and compiles them against the
// profile.
func (p *Planner) Plan(ctx context.Context, src analysis.Source, profile intent.Profile) (*timeline.EDL, error) {
	logger := logging.NewComponentLogger(p.Logger, "planner")

	if p.Vision == nil || p.Audio == nil {
		return nil, services.Wrap(services.ErrConfiguration, "planner", "plan", "analyzers not configured", nil)
	}

	vision, err := p.Vision.ExtractFeatures(ctx, src)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "planner", "plan", "vision analysis failed", err)
	}
	audio, err := p.Audio.ExtractFeatures(ctx, src)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "planner", "plan", "audio analysis failed", err)
	}

	edl, err := Compile(src, vision, audio, profile)
	if err != nil {
		return nil, err
	}

	logger.Info("plan compiled",
		logging.String(logging.FieldEventType, "plan_compiled"),
		logging.String("style", string(profile.Style)),
		logging.Int("segments", len(edl.Segments)),
		logging.Duration("output", edl.OutputDuration()))
	return edl, nil
}

// Compile builds a valid EDL from features and a profile. Scene changes
// propose cut points, long stretches get paced cuts snapped to nearby
// energy peaks, and cuts violating the profile's minimum segment length are
// dropped. The profile's transition, grade, speed, and effects apply to
// every segment after the first.
func Compile(src analysis.Source, vision analysis.VisionFeatures, audio analysis.AudioFeatures, profile intent.Profile) (*timeline.EDL, error) {
	if src.Duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "planner", "compile", "source duration must be positive", nil)
	}
	if src.Duration < profile.MinSegment {
		return nil, services.Wrap(services.ErrValidation, "planner", "compile",
			"source shorter than the profile's minimum segment", nil)
	}

	cuts := selectCuts(src.Duration, vision.SceneChanges, audio.EnergyPeaks, profile)

	overlap := profile.Transition.Overlap()
	segments := make([]timeline.Segment, 0, len(cuts)+1)
	prevEnd := time.Duration(0)
	bounds := append(append([]time.Duration(nil), cuts...), src.Duration)
	for i, end := range bounds {
		seg := timeline.Segment{
			Start:   prevEnd,
			End:     end,
			Speed:   profile.Speed,
			Grade:   cloneGrade(profile.Grade),
			Effects: cloneEffects(profile.Effects),
		}
		if i > 0 {
			seg.Transition = profile.Transition
			// A declared blend consumes the predecessor's tail.
			seg.Start = prevEnd - overlap
		}
		segments = append(segments, seg)
		prevEnd = end
	}

	edl := &timeline.EDL{Media: src.Media, Segments: segments}
	if err := edl.Validate(); err != nil {
		return nil, services.Wrap(services.ErrValidation, "planner", "compile", "compiled plan is invalid", err)
	}
	return edl, nil
}

// selectCuts merges scene-change cuts with pacing cuts. Every cut keeps at
// least MinSegment of material on both sides; pacing cuts snap to an energy
// peak when one lies within half a minimum segment.
func selectCuts(duration time.Duration, scenes, peaks []time.Duration, profile intent.Profile) []time.Duration {
	overlap := profile.Transition.Overlap()
	minGap := profile.MinSegment
	if minGap <= overlap {
		minGap = overlap + 100*time.Millisecond
	}

	var cuts []time.Duration
	last := time.Duration(0)
	appendCut := func(at time.Duration) bool {
		if at-last < minGap || duration-at < minGap {
			return false
		}
		cuts = append(cuts, at)
		last = at
		return true
	}

	sorted := append([]time.Duration(nil), scenes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, scene := range sorted {
		// Pace out stretches with no scene activity before this cut.
		for scene-last > 2*profile.TargetSegment {
			if !appendCut(snapToPeak(last+profile.TargetSegment, peaks, minGap/2)) {
				break
			}
		}
		appendCut(scene)
	}
	for duration-last > 2*profile.TargetSegment {
		if !appendCut(snapToPeak(last+profile.TargetSegment, peaks, minGap/2)) {
			break
		}
	}
	return cuts
}

// snapToPeak moves a proposed cut to the closest energy peak within the
// tolerance, or leaves it alone.
func snapToPeak(at time.Duration, peaks []time.Duration, tolerance time.Duration) time.Duration {
	best := at
	bestDist := tolerance + 1
	for _, peak := range peaks {
		dist := peak - at
		if dist < 0 {
			dist = -dist
		}
		if dist <= tolerance && dist < bestDist {
			best = peak
			bestDist = dist
		}
	}
	return best
}

func cloneGrade(g timeline.ColorGrade) timeline.ColorGrade {
	out := timeline.ColorGrade{Name: g.Name}
	if g.Params != nil {
		out.Params = make(map[string]float64, len(g.Params))
		for k, v := range g.Params {
			out.Params[k] = v
		}
	}
	return out
}

func cloneEffects(effects []timeline.Effect) []timeline.Effect {
	if effects == nil {
		return nil
	}
	out := make([]timeline.Effect, len(effects))
	for i, effect := range effects {
		out[i] = timeline.Effect{Type: effect.Type}
		if effect.Params != nil {
			out[i].Params = make(map[string]float64, len(effect.Params))
			for k, v := range effect.Params {
				out[i].Params[k] = v
			}
		}
	}
	return out
}
