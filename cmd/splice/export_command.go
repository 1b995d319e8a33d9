package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"splice/internal/assemble"
	"splice/internal/config"
	"splice/internal/session"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var formatFlag string
	var skipMissing bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "export EDL",
		Short: "Render an EDL and assemble the final output",
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

			edl, err := readEDL(args[0])
			if err != nil {
				return err
			}
			if err := ctx.ensureCacheSpace(); err != nil {
				return err
			}

			cache, err := ctx.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close(cmd.Context())

			dispatcher, err := ctx.newDispatcher(cache)
			if err != nil {
				return err
			}
			sess, err := session.New(edl, dispatcher, cache, logger)
			if err != nil {
				return err
			}

			result, err := sess.Render(cmd.Context())
			if err != nil {
				return err
			}
			if !result.Complete() && !skipMissing {
				printRenderReport(cmd, result)
				return fmt.Errorf("render incomplete: %d segment(s) failed (use --skip-missing to export with gaps)",
					len(result.Report.Failed))
			}

			format := strings.ToLower(strings.TrimSpace(formatFlag))
			if format == "" {
				format = cfg.Assemble.Format
			}

			target := strings.TrimSpace(outputPath)
			if target == "" {
				name := edl.Media.ID
				if format == "hls" {
					target = filepath.Join(cfg.Paths.OutputDir, name+".m3u8")
				} else {
					target = filepath.Join(cfg.Paths.OutputDir, name+"."+cfg.Render.Container)
				}
			}
			if target, err = config.ExpandPath(target); err != nil {
				return err
			}

			var writer assemble.Writer
			switch format {
			case "hls":
				writer, err = assemble.NewHLSWriter(target, uint(len(edl.Segments)))
				if err != nil {
					return err
				}
			case "file":
				writer = assemble.NewFFmpegWriter(assemble.FFmpegWriterOptions{
					Binary:     cfg.Render.FFmpegBinary,
					OutputPath: target,
					VideoCodec: cfg.Render.VideoCodec,
					AudioCodec: cfg.Render.AudioCodec,
					CRF:        cfg.Render.CRF,
					Logger:     logger,
				})
			default:
				return fmt.Errorf("unknown export format %q (file, hls)", format)
			}

			plan, err := sess.Export(cmd.Context(), writer, assemble.Options{
				SkipMissing: skipMissing,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"output":   target,
					"format":   format,
					"parts":    len(plan.Parts),
					"skipped":  plan.Skipped,
					"duration": plan.TotalDuration.Seconds(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Assembled %d part(s), %s total\n",
				len(plan.Parts), plan.TotalDuration.Round(time.Millisecond))
			if len(plan.Skipped) > 0 {
				fmt.Fprintf(out, "Skipped segments: %v\n", plan.Skipped)
			}
			fmt.Fprintf(out, "Wrote %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path")
	cmd.Flags().StringVar(&formatFlag, "format", "", "Output format: file or hls")
	cmd.Flags().BoolVar(&skipMissing, "skip-missing", false, "Export with gaps when segments failed to render")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")

	return cmd
}
