package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chartreel/internal/logging"
	"chartreel/internal/materialize"
	"chartreel/internal/render"
	"chartreel/internal/ttscache"
)

// staleTempAge matches the sweep the daemon runs at startup.
const staleTempAge = time.Hour

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the narration audio cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheWarmCommand(ctx))
	cacheCmd.AddCommand(newCacheCleanCommand(ctx))

	return cacheCmd
}

func cliLogger(cmd *cobra.Command) *slog.Logger {
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Console: cmd.ErrOrStderr()})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var list int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and the most recently cached narration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := render.NewCache(cfg, cliLogger(cmd))
			if err != nil {
				return err
			}
			stats, err := cache.Stats()
			if err != nil {
				return err
			}
			records := cache.Records()
			if list >= 0 && len(records) > list {
				records = records[:list]
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Stats   ttscache.Stats    `json:"stats"`
					Records []ttscache.Record `json:"records"`
				}{stats, records})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderKeyValues([][2]string{
				{"Directory", stats.Dir},
				{"Entries", humanize.Comma(int64(stats.Entries))},
				{"Size", humanize.Bytes(uint64(stats.Bytes))},
				{"Indexed", humanize.Comma(int64(stats.Indexed))},
			}))
			if len(records) == 0 {
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Digest", "Lang", "Speed", "Duration", "Size", "Cached", "Text"},
				recordRows(records),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&list, "list", 10, "Number of recent entries to list")
	return cmd
}

func recordRows(records []ttscache.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			shortID(rec.Digest),
			rec.Language,
			ttscache.FormatSpeed(rec.Speed) + "x",
			strconv.FormatFloat(rec.DurationSeconds, 'f', 2, 64) + "s",
			humanize.Bytes(uint64(rec.Bytes)),
			relativeTime(rec.CachedAt),
			truncate(rec.Text, 40),
		})
	}
	return rows
}

func newCacheWarmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Synthesize and stage narration for the saved timeline without rendering",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job, err := render.NewJobFromConfig(cfg, io.Discard, cliLogger(cmd))
			if err != nil {
				return err
			}
			result, err := job.Warm(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Resolved %d segments (%d failed) in %s\n",
				result.SegmentsResolved, result.SegmentsFailed, result.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "Staged %d copied, %d already present\n", len(result.Staged.Copied), len(result.Staged.Skipped))
			if result.SegmentsFailed > 0 || !result.Staged.OK() {
				return fmt.Errorf("%d segments could not be prepared; see log output", result.SegmentsFailed+len(result.Staged.Failures)+len(result.Staged.Missing))
			}
			return nil
		},
	}
}

func newCacheCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove abandoned temp files from the cache and audio directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cliLogger(cmd)
			removed, failed := 0, 0
			for _, dir := range []string{cfg.Paths.CacheDir, cfg.PublicAudioDir(), cfg.BundleAudioDir(), cfg.Paths.OutDir} {
				result := materialize.CleanStale(dir, maxAge, logger)
				removed += len(result.Removed)
				failed += len(result.Errors)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale temp files\n", removed)
			if failed > 0 {
				return fmt.Errorf("%d temp files could not be removed", failed)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", staleTempAge, "Only remove temp files older than this")
	return cmd
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
