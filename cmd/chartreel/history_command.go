package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"chartreel/internal/api"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent render runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Runs) == 0 {
					fmt.Fprintln(out, "No renders recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Job", "Status", "Progress", "Frames", "Started", "Elapsed", "Detail"},
					historyRows(resp.Runs),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one render run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				run, err := client.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(runPairs(run)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func runPairs(run api.RenderRun) [][2]string {
	pairs := [][2]string{
		{"Job", run.ID},
		{"Status", statusText(run.Status)},
		{"Progress", fmt.Sprintf("%d%%", run.Progress)},
		{"Started", relativeTime(api.ParseTime(run.StartedAt))},
		{"Elapsed", elapsedText(run.ElapsedSeconds)},
	}
	if run.ExitCode != nil {
		pairs = append(pairs, [2]string{"Exit code", strconv.Itoa(*run.ExitCode)})
	}
	if run.DurationFrames > 0 {
		pairs = append(pairs, [2]string{"Frames", strconv.Itoa(run.DurationFrames)})
	}
	if run.Error != "" {
		pairs = append(pairs, [2]string{"Error", run.Error})
	}
	if run.Artifact != "" {
		pairs = append(pairs, [2]string{"Artifact", run.Artifact})
	}
	if run.PublishedURL != "" {
		pairs = append(pairs, [2]string{"Published", run.PublishedURL})
	}
	return pairs
}

func historyRows(runs []api.RenderRun) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		frames := "-"
		if run.DurationFrames > 0 {
			frames = strconv.Itoa(run.DurationFrames)
		}
		detail := run.Error
		if run.PublishedURL != "" {
			detail = run.PublishedURL
		}
		rows = append(rows, []string{
			shortID(run.ID),
			statusText(run.Status),
			fmt.Sprintf("%d%%", run.Progress),
			frames,
			relativeTime(api.ParseTime(run.StartedAt)),
			elapsedText(run.ElapsedSeconds),
			detail,
		})
	}
	return rows
}
