package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"splice/internal/analysis"
	"splice/internal/config"
	"splice/internal/intent"
	"splice/internal/planner"
	"splice/internal/probe"
	"splice/internal/timeline"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var styleFlag string
	var mediaID string
	var mediaVersion string
	var outputPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan MEDIA",
		Short: "Analyze a source and compile an edit decision list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			mediaPath, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			style := styleFlag
			if style == "" {
				style = cfg.Plan.Style
			}
			profile, err := intent.ProfileFor(style)
			if err != nil {
				return err
			}

			probeCtx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Plan.ProbeTimeoutSeconds)*time.Second)
			defer cancel()
			inspected, err := probe.Inspect(probeCtx, cfg.Render.FFprobeBinary, mediaPath)
			if err != nil {
				return err
			}
			if inspected.VideoStreamCount() == 0 {
				return fmt.Errorf("%s has no video stream", mediaPath)
			}

			id := strings.TrimSpace(mediaID)
			if id == "" {
				id = strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
			}
			src := analysis.Source{
				Media: timeline.Media{
					ID:      id,
					Version: strings.TrimSpace(mediaVersion),
					Path:    mediaPath,
				},
				Duration: inspected.Duration(),
			}

			p := &planner.Planner{
				Vision: analysis.IntervalVision{
					Interval: time.Duration(cfg.Plan.SceneIntervalSecs) * time.Second,
				},
				Audio: analysis.PulseAudio{
					Interval: time.Duration(cfg.Plan.PeakIntervalSecs) * time.Second,
					Phase:    time.Duration(cfg.Plan.PeakPhaseSecs) * time.Second,
				},
				Logger: logger,
			}
			edl, err := p.Plan(cmd.Context(), src, profile)
			if err != nil {
				return err
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = filepath.Join(cfg.Paths.OutputDir, id+".edl.json")
			}
			if err := writeEDL(edl, target); err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"edl":      target,
					"style":    string(profile.Style),
					"segments": len(edl.Segments),
					"duration": edl.OutputDuration().Seconds(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Planned %d segments (%s style, %s output)\n",
				len(edl.Segments), profile.Style.Label(), edl.OutputDuration().Round(time.Millisecond))
			fmt.Fprintf(out, "Wrote %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVar(&styleFlag, "style", "", "Editing style (cinematic, energetic, documentary, social)")
	cmd.Flags().StringVar(&mediaID, "media-id", "", "Stable media identifier (defaults to the file name)")
	cmd.Flags().StringVar(&mediaVersion, "media-version", "", "Media content version")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "EDL output path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")

	return cmd
}
