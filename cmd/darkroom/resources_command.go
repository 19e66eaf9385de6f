package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type resourcesView struct {
	State           string  `json:"state"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	Throttling      bool    `json:"throttling"`
	Idle            bool    `json:"idle"`
	IdleSeconds     float64 `json:"idle_seconds"`
	AvgCPUPercent   float64 `json:"avg_cpu_percent"`
	AvgMemPercent   float64 `json:"avg_mem_percent"`
	Latest          *struct {
		CPUPercent    float64 `json:"cpu_percent"`
		MemoryPercent float64 `json:"memory_percent"`
		DiskPercent   float64 `json:"disk_percent"`
		GPU           *struct {
			LoadPercent  float64 `json:"load_percent"`
			TemperatureC float64 `json:"temperature_c"`
		} `json:"gpu"`
	} `json:"latest"`
}

func newResourcesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Show system resource state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var view resourcesView
			if err := client.get(cmd.Context(), "/api/resources", &view); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "State:       %s\n", view.State)
			fmt.Fprintf(out, "Speed:       %.2fx\n", view.SpeedMultiplier)
			fmt.Fprintf(out, "Throttling:  %t\n", view.Throttling)
			if view.Idle {
				fmt.Fprintf(out, "Idle:        %.0fs\n", view.IdleSeconds)
			}
			fmt.Fprintf(out, "CPU (avg):   %.1f%%\n", view.AvgCPUPercent)
			fmt.Fprintf(out, "Memory (avg): %.1f%%\n", view.AvgMemPercent)
			if view.Latest != nil {
				fmt.Fprintf(out, "Disk:        %.1f%%\n", view.Latest.DiskPercent)
				if view.Latest.GPU != nil {
					fmt.Fprintf(out, "GPU:         %.1f%% load, %.1fC\n",
						view.Latest.GPU.LoadPercent, view.Latest.GPU.TemperatureC)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}
