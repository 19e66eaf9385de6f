package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"darkroom/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}

			var status api.DaemonStatus
			if err := client.get(cmd.Context(), "/api/status", &status); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), status)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running:        %t\n", status.Running)
			fmt.Fprintf(out, "PID:            %d\n", status.PID)
			fmt.Fprintf(out, "Active batches: %d\n", status.ActiveBatches)
			fmt.Fprintf(out, "Job database:   %s\n", status.JobDBPath)
			fmt.Fprintf(out, "Lock file:      %s\n", status.LockFilePath)

			var stats jobStats
			if err := client.get(cmd.Context(), "/api/jobs/stats", &stats); err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderRows(
				[]string{"STATUS", "JOBS"},
				statusRows(stats.ByStatus),
				[]columnAlignment{alignLeft, alignRight},
			))
			if len(stats.ByPriority) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderRows(
					[]string{"PRIORITY", "JOBS"},
					priorityRows(stats.ByPriority),
					[]columnAlignment{alignRight, alignRight},
				))
			}
			if len(stats.PausedLanes) > 0 {
				fmt.Fprintf(out, "Paused lanes: %v\n", stats.PausedLanes)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

type jobStats struct {
	ByStatus    map[string]int `json:"by_status"`
	ByPriority  map[int]int    `json:"by_priority"`
	ByLane      map[string]int `json:"by_lane"`
	PausedLanes []string       `json:"paused_lanes"`
}

func statusRows(counts map[string]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
		if n, ok := counts[status]; ok {
			rows = append(rows, []string{status, strconv.Itoa(n)})
		}
	}
	return rows
}

func priorityRows(counts map[int]int) [][]string {
	prios := make([]int, 0, len(counts))
	for prio := range counts {
		prios = append(prios, prio)
	}
	sort.Ints(prios)
	rows := make([][]string, 0, len(prios))
	for _, prio := range prios {
		rows = append(rows, []string{strconv.Itoa(prio), strconv.Itoa(counts[prio])})
	}
	return rows
}
