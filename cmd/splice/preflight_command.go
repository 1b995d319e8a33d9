package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"splice/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Verify directories, disk space, and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"checks":   results,
					"binaries": statuses,
				})
			}

			rows := make([][]string, 0, len(results)+len(statuses))
			failed := 0
			for _, result := range results {
				status := "ok"
				if !result.Passed {
					status = "failed"
					failed++
				}
				rows = append(rows, []string{result.Name, status, result.Detail})
			}
			for _, status := range statuses {
				state := "ok"
				if !status.Available {
					if status.Optional {
						state = "missing (optional)"
					} else {
						state = "missing"
						failed++
					}
				}
				rows = append(rows, []string{status.Name, state, status.Detail})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}
