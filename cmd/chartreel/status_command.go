package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chartreel/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, render, cache, and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.DaemonStatus(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				pairs := [][2]string{
					{"Daemon", fmt.Sprintf("running (pid %d)", status.PID)},
					{"API", status.APIBind},
					{"History", status.HistoryDBPath},
					{"Log", status.LogPath},
					{"Cache", fmt.Sprintf("%s entries, %s in %s", humanize.Comma(int64(status.Cache.Entries)), humanize.Bytes(uint64(status.Cache.Bytes)), status.Cache.Dir)},
				}
				pairs = append(pairs, renderStatusPairs(status.Render)...)
				fmt.Fprintln(out, renderKeyValues(pairs))
				fmt.Fprintln(out, renderTable(
					[]string{"Dependency", "Command", "Available", "Detail"},
					dependencyRows(status.Dependencies),
					nil,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func dependencyRows(statuses []api.DependencyStatus) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, dep := range statuses {
		name := dep.Name
		if dep.Optional {
			name += " (optional)"
		}
		rows = append(rows, []string{name, dep.Command, yesNo(dep.Available), dep.Detail})
	}
	return rows
}
