package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"splice/internal/render"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var changedFlag []int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "render EDL",
		Short: "Render an edit decision list into the segment cache",
		Long: "Render renders every segment of the EDL that the cache cannot " +
			"already serve. Indices passed via --changed are treated as edited " +
			"and re-render even on a cache hit.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result, err := dispatcher.RenderChanges(cmd.Context(), edl, changedFlag)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, result.Report); err != nil {
					return err
				}
			} else {
				printRenderReport(cmd, result)
			}

			if !result.Complete() {
				return fmt.Errorf("render incomplete: %d segment(s) failed", len(result.Report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&changedFlag, "changed", nil, "Segment indices edited since the last render")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")

	return cmd
}

func printRenderReport(cmd *cobra.Command, result *render.Result) {
	rows := make([][]string, 0, len(result.Slots))
	for _, slot := range result.Slots {
		status := "rendered"
		detail := ""
		switch {
		case slot.Err != nil:
			status = "failed"
			detail = slot.Err.Error()
		case slot.Reused:
			status = "reused"
		}
		rows = append(rows, []string{
			strconv.Itoa(slot.Index),
			status,
			slot.Fingerprint.Short(),
			detail,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Segment", "Status", "Fingerprint", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "%d rendered, %d reused, %d failed in %s\n",
		len(result.Report.Rendered), len(result.Report.Reused), len(result.Report.Failed),
		result.Report.Elapsed.Round(time.Millisecond))
}
