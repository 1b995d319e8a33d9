package analysis

import (
	"context"
	"time"

	"splice/internal/services"
	"splice/internal/timeline"
)

// Source is the probed input handed to analyzers: the media identity plus
// its container duration.
type Source struct {
	Media    timeline.Media
	Duration time.Duration
}

// VisionFeatures are the visual cut points extracted from a source.
type VisionFeatures struct {
	// SceneChanges are offsets into the source, strictly increasing and
	// strictly inside (0, Duration).
	SceneChanges []time.Duration
}

// AudioFeatures are the audio emphasis points extracted from a source.
type AudioFeatures struct {
	// EnergyPeaks are offsets into the source, strictly increasing.
	EnergyPeaks []time.Duration
}

// VisionAnalyzer extracts visual features from a source.
type VisionAnalyzer interface {
	ExtractFeatures(ctx context.Context, src Source) (VisionFeatures, error)
}

// AudioAnalyzer extracts audio features from a source.
type AudioAnalyzer interface {
	ExtractFeatures(ctx context.Context, src Source) (AudioFeatures, error)
}

// IntervalVision reports a scene change at every fixed interval. It stands
// in for model-driven scene detection and keeps planning fully
// reproducible.
type IntervalVision struct {
	Interval time.Duration
}

func (a IntervalVision) ExtractFeatures(ctx context.Context, src Source) (VisionFeatures, error) {
	if err := ctx.Err(); err != nil {
		return VisionFeatures{}, err
	}
	if a.Interval <= 0 {
		return VisionFeatures{}, services.Wrap(services.ErrValidation, "analysis", "vision",
			"scene interval must be positive", nil)
	}
	if src.Duration <= 0 {
		return VisionFeatures{}, services.Wrap(services.ErrValidation, "analysis", "vision",
			"source duration must be positive", nil)
	}

	var features VisionFeatures
	for at := a.Interval; at < src.Duration; at += a.Interval {
		features.SceneChanges = append(features.SceneChanges, at)
	}
	return features, nil
}

// PulseAudio reports an energy peak at every fixed interval, offset by
// Phase so audio peaks do not coincide with scene changes.
type PulseAudio struct {
	Interval time.Duration
	Phase    time.Duration
}

func (a PulseAudio) ExtractFeatures(ctx context.Context, src Source) (AudioFeatures, error) {
	if err := ctx.Err(); err != nil {
		return AudioFeatures{}, err
	}
	if a.Interval <= 0 {
		return AudioFeatures{}, services.Wrap(services.ErrValidation, "analysis", "audio",
			"pulse interval must be positive", nil)
	}

	var features AudioFeatures
	for at := a.Phase; at < src.Duration; at += a.Interval {
		if at <= 0 {
			continue
		}
		features.EnergyPeaks = append(features.EnergyPeaks, at)
	}
	return features, nil
}
