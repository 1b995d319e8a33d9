package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"splice/internal/timeline"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Segment cache utilities",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close(cmd.Context())

			stats := cache.Stats()
			if jsonOutput {
				return writeJSON(cmd, stats)
			}

			rows := [][]string{
				{"Entries", formatLimit(int64(stats.Entries), int64(stats.MaxEntries))},
				{"Size", formatBytesLimit(stats.TotalBytes, stats.MaxBytes)},
				{"Pinned", strconv.Itoa(stats.Pinned)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var mediaID string
	var mediaVersion string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop cached artifacts",
		Long: "Purge drops every cached artifact, or, with --media, only entries " +
			"belonging to other versions of that media.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.openCache(cmd.Context())
			if err != nil {
				return err
			}
			defer cache.Close(cmd.Context())

			before := cache.Stats().Entries
			if id := strings.TrimSpace(mediaID); id != "" {
				err = cache.PurgeMedia(cmd.Context(), timeline.Media{ID: id, Version: strings.TrimSpace(mediaVersion)})
			} else {
				err = cache.InvalidateAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			dropped := before - cache.Stats().Entries
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d cache entr%s\n", dropped, pluralY(dropped))
			return nil
		},
	}

	cmd.Flags().StringVar(&mediaID, "media", "", "Limit the purge to stale versions of this media ID")
	cmd.Flags().StringVar(&mediaVersion, "media-version", "", "Version to keep when purging by media")
	return cmd
}

func formatLimit(value, limit int64) string {
	if limit <= 0 {
		return strconv.FormatInt(value, 10)
	}
	return fmt.Sprintf("%d / %d", value, limit)
}

func formatBytesLimit(value, limit int64) string {
	if limit <= 0 {
		return formatBytes(value)
	}
	return fmt.Sprintf("%s / %s", formatBytes(value), formatBytes(limit))
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
