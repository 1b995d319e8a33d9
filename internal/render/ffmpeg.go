package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"splice/internal/artifact"
	"splice/internal/logging"
	"splice/internal/services"
	"splice/internal/timeline"
)

// FFmpegOptions configures the exec-based backend.
type FFmpegOptions struct {
	Command    string // defaults to "ffmpeg"
	VideoCodec string
	AudioCodec string
	CRF        int
	Timeout    time.Duration
	Logger     *slog.Logger
}

// FFmpegBackend renders segments by invoking ffmpeg once per request.
type FFmpegBackend struct {
	command    string
	videoCodec string
	audioCodec string
	crf        int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewFFmpegBackend constructs the backend with defaults filled in.
func NewFFmpegBackend(opts FFmpegOptions) *FFmpegBackend {
	command := strings.TrimSpace(opts.Command)
	if command == "" {
		command = "ffmpeg"
	}
	videoCodec := strings.TrimSpace(opts.VideoCodec)
	if videoCodec == "" {
		videoCodec = "libx264"
	}
	audioCodec := strings.TrimSpace(opts.AudioCodec)
	if audioCodec == "" {
		audioCodec = "aac"
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = 18
	}
	return &FFmpegBackend{
		command:    command,
		videoCodec: videoCodec,
		audioCodec: audioCodec,
		crf:        crf,
		timeout:    opts.Timeout,
		logger:     logging.NewComponentLogger(opts.Logger, "ffmpeg"),
	}
}

// RenderSegment cuts the segment's source range and applies its speed,
// effect, and grade parameters in one ffmpeg pass.
func (b *FFmpegBackend) RenderSegment(ctx context.Context, req Request) (artifact.Artifact, error) {
	if strings.TrimSpace(req.Media.Path) == "" {
		return artifact.Artifact{}, services.Wrap(services.ErrValidation, "ffmpeg", "render", "media path is empty", nil)
	}
	if strings.TrimSpace(req.OutputPath) == "" {
		return artifact.Artifact{}, services.Wrap(services.ErrValidation, "ffmpeg", "render", "output path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return artifact.Artifact{}, fmt.Errorf("ensure artifact directory: %w", err)
	}

	args, err := b.buildArgs(req)
	if err != nil {
		return artifact.Artifact{}, err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	b.logger.Debug("rendering segment",
		logging.Int(logging.FieldSegmentIndex, req.Index),
		logging.String(logging.FieldFingerprint, req.Fingerprint.Short()),
		logging.Duration("source_span", req.Segment.SourceDuration()))

	cmd := exec.CommandContext(ctx, b.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Leave no partial artifact behind for the cache to trip over.
		_ = os.Remove(req.OutputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return artifact.Artifact{}, services.Wrap(services.ErrTimeout, "ffmpeg", "render", tail(stderr.String()), ctxErr)
		}
		return artifact.Artifact{}, services.Wrap(services.ErrExternalTool, "ffmpeg", "render", tail(stderr.String()), err)
	}

	return artifact.FromFile(req.Fingerprint, req.OutputPath)
}

func (b *FFmpegBackend) buildArgs(req Request) ([]string, error) {
	seg := req.Segment
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", formatSeconds(seg.Start),
		"-t", formatSeconds(seg.SourceDuration()),
		"-i", req.Media.Path,
	}

	videoFilters, audioFilters, err := buildFilters(seg)
	if err != nil {
		return nil, err
	}
	if len(videoFilters) > 0 {
		args = append(args, "-filter:v", strings.Join(videoFilters, ","))
	}
	if len(audioFilters) > 0 {
		args = append(args, "-filter:a", strings.Join(audioFilters, ","))
	}

	args = append(args,
		"-c:v", b.videoCodec,
		"-crf", strconv.Itoa(b.crf),
		"-c:a", b.audioCodec,
		req.OutputPath,
	)
	return args, nil
}

func buildFilters(seg timeline.Segment) (video []string, audio []string, err error) {
	if seg.Speed != 1 {
		video = append(video, fmt.Sprintf("setpts=PTS/%s", formatFloat(seg.Speed)))
		audio = append(audio, atempoChain(seg.Speed)...)
	}

	for _, effect := range seg.Effects {
		filter, filterErr := effectFilter(effect)
		if filterErr != nil {
			return nil, nil, filterErr
		}
		video = append(video, filter)
	}

	if grade := gradeFilter(seg.Grade); grade != "" {
		video = append(video, grade)
	}
	return video, audio, nil
}

// atempoChain decomposes a playback rate into atempo stages, each within
// ffmpeg's supported 0.5..2.0 range.
func atempoChain(speed float64) []string {
	var stages []string
	for speed > 2.0 {
		stages = append(stages, "atempo=2.0")
		speed /= 2.0
	}
	for speed < 0.5 {
		stages = append(stages, "atempo=0.5")
		speed /= 0.5
	}
	stages = append(stages, "atempo="+formatFloat(speed))
	return stages
}

func effectFilter(effect timeline.Effect) (string, error) {
	get := func(key string, fallback float64) float64 {
		if v, ok := effect.Params[key]; ok {
			return v
		}
		return fallback
	}
	switch effect.Type {
	case "blur":
		return fmt.Sprintf("gblur=sigma=%s", formatFloat(get("sigma", 1.5))), nil
	case "sharpen":
		return fmt.Sprintf("unsharp=5:5:%s", formatFloat(get("amount", 1.0))), nil
	case "vignette":
		return "vignette", nil
	case "denoise":
		return fmt.Sprintf("hqdn3d=%s", formatFloat(get("strength", 4))), nil
	case "eq":
		return fmt.Sprintf("eq=brightness=%s:contrast=%s:saturation=%s",
			formatFloat(get("brightness", 0)),
			formatFloat(get("contrast", 1)),
			formatFloat(get("saturation", 1))), nil
	default:
		return "", services.Wrap(services.ErrValidation, "ffmpeg", "filters",
			fmt.Sprintf("unsupported effect %q", effect.Type), nil)
	}
}

func gradeFilter(grade timeline.ColorGrade) string {
	switch grade.Name {
	case "", "neutral":
		if len(grade.Params) == 0 {
			return ""
		}
	case "cinematic":
		return "colorbalance=rs=-0.05:bs=0.08,eq=contrast=1.08:saturation=1.05"
	case "warm":
		return "colorbalance=rs=0.08:bs=-0.06"
	case "cool":
		return "colorbalance=rs=-0.06:bs=0.08"
	case "mono":
		return "hue=s=0"
	}

	if len(grade.Params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(grade.Params))
	for k := range grade.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatFloat(grade.Params[k]))
	}
	return "eq=" + strings.Join(parts, ":")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) <= 4 {
		return s
	}
	return strings.Join(lines[len(lines)-4:], "\n")
}
