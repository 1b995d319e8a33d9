package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"splice/internal/logging"
	"splice/internal/services"
	"splice/internal/timeline"
)

// FFmpegWriterOptions configure the final mux step.
type FFmpegWriterOptions struct {
	Binary     string
	OutputPath string
	VideoCodec string
	AudioCodec string
	CRF        int
	Logger     *slog.Logger
}

// FFmpegWriter joins parts with ffmpeg. Parts accumulate through WritePart
// and the actual invocation happens on Close, since the join strategy
// depends on whether any boundary blends: overlap-free timelines use the
// concat demuxer with stream copy, anything with a crossfade or wipe goes
// through a filter graph re-encode.
type FFmpegWriter struct {
	opts   FFmpegWriterOptions
	logger *slog.Logger
	parts  []Part
}

func NewFFmpegWriter(opts FFmpegWriterOptions) *FFmpegWriter {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = "aac"
	}
	if opts.CRF == 0 {
		opts.CRF = 18
	}
	return &FFmpegWriter{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "assemble"),
	}
}

func (w *FFmpegWriter) WritePart(_ context.Context, part Part) error {
	if part.Artifact.Path == "" {
		return services.Wrap(services.ErrValidation, "assemble", "write_part",
			fmt.Sprintf("part %d has no artifact path", part.Index), nil)
	}
	w.parts = append(w.parts, part)
	return nil
}

func (w *FFmpegWriter) Close(ctx context.Context) error {
	if len(w.parts) == 0 {
		return services.Wrap(services.ErrValidation, "assemble", "close", "no parts to assemble", nil)
	}

	blended := false
	for i, part := range w.parts {
		if i > 0 && part.Overlap > 0 {
			blended = true
			break
		}
	}

	var args []string
	var cleanup func()
	var err error
	if blended {
		args = w.filterArgs()
	} else {
		args, cleanup, err = w.concatArgs()
		if err != nil {
			return err
		}
		defer cleanup()
	}

	w.logger.Info("assembling output",
		logging.String(logging.FieldEventType, "assembly_started"),
		logging.Int("parts", len(w.parts)),
		logging.Bool("blended", blended),
		logging.String("output", w.opts.OutputPath))

	cmd := exec.CommandContext(ctx, w.opts.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(w.opts.OutputPath)
		if ctx.Err() != nil {
			return services.Wrap(services.ErrTimeout, "assemble", "mux", "assembly cancelled", ctx.Err())
		}
		return services.Wrap(services.ErrExternalTool, "assemble", "mux",
			fmt.Sprintf("ffmpeg assembly failed: %s", tail(string(out), 400)), err)
	}
	return nil
}

// concatArgs builds a concat-demuxer invocation with stream copy. Used only
// when no boundary blends, so no re-encode is needed.
func (w *FFmpegWriter) concatArgs() ([]string, func(), error) {
	list, err := os.CreateTemp("", "splice-concat-*.txt")
	if err != nil {
		return nil, nil, services.Wrap(services.ErrTransient, "assemble", "concat_list", "create concat list", err)
	}
	for _, part := range w.parts {
		abs, err := filepath.Abs(part.Artifact.Path)
		if err != nil {
			list.Close()
			os.Remove(list.Name())
			return nil, nil, services.Wrap(services.ErrValidation, "assemble", "concat_list",
				fmt.Sprintf("resolve part %d path", part.Index), err)
		}
		fmt.Fprintf(list, "file '%s'\n", abs)
	}
	if err := list.Close(); err != nil {
		os.Remove(list.Name())
		return nil, nil, services.Wrap(services.ErrTransient, "assemble", "concat_list", "flush concat list", err)
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-f", "concat", "-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		w.opts.OutputPath,
	}
	return args, func() { os.Remove(list.Name()) }, nil
}

// filterArgs builds a filter_complex invocation over every part. Blend
// boundaries chain xfade/acrossfade; zero-overlap boundaries use the concat
// filter so a hard cut stays frame-exact instead of degrading into a
// zero-length fade.
func (w *FFmpegWriter) filterArgs() []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	for _, part := range w.parts {
		args = append(args, "-i", part.Artifact.Path)
	}

	var graph []string
	vLabel, aLabel := "[0:v]", "[0:a]"
	// offset tracks where the next transition begins on the accumulated
	// output: the running duration minus the upcoming overlap.
	elapsed := w.parts[0].Duration
	for i := 1; i < len(w.parts); i++ {
		part := w.parts[i]
		overlap := part.Overlap
		vOut := fmt.Sprintf("[v%d]", i)
		aOut := fmt.Sprintf("[a%d]", i)
		if overlap <= 0 {
			graph = append(graph, fmt.Sprintf("%s%s[%d:v][%d:a]concat=n=2:v=1:a=1%s%s",
				vLabel, aLabel, i, i, vOut, aOut))
			vLabel, aLabel = vOut, aOut
			elapsed += part.Duration
			continue
		}
		offset := elapsed - overlap
		graph = append(graph, fmt.Sprintf("%s[%d:v]xfade=transition=%s:duration=%s:offset=%s%s",
			vLabel, i, xfadeName(part.Transition), formatSeconds(overlap), formatSeconds(offset), vOut))
		graph = append(graph, fmt.Sprintf("%s[%d:a]acrossfade=d=%s%s",
			aLabel, i, formatSeconds(overlap), aOut))
		vLabel, aLabel = vOut, aOut
		elapsed += part.Duration - overlap
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", vLabel, "-map", aLabel,
		"-c:v", w.opts.VideoCodec,
		"-crf", fmt.Sprintf("%d", w.opts.CRF),
		"-c:a", w.opts.AudioCodec,
		w.opts.OutputPath,
	)
	return args
}

// xfadeName maps a timeline transition onto an xfade filter mode.
func xfadeName(t timeline.Transition) string {
	switch t.Kind {
	case timeline.TransitionCrossfade:
		return "fade"
	case timeline.TransitionWipe:
		switch t.Direction {
		case timeline.WipeRight:
			return "wiperight"
		case timeline.WipeUp:
			return "wipeup"
		case timeline.WipeDown:
			return "wipedown"
		default:
			return "wipeleft"
		}
	default:
		return "fade"
	}
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
