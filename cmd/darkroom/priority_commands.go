package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"darkroom/internal/api"
)

func newPriorityCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority",
		Short: "Inspect and adjust queue priorities",
	}
	cmd.AddCommand(newPriorityRebalanceCommand(ctx))
	cmd.AddCommand(newPriorityBoostCommand(ctx))
	cmd.AddCommand(newPriorityWeightsCommand(ctx))
	cmd.AddCommand(newPriorityStarvingCommand(ctx))
	return cmd
}

func newPriorityRebalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "Recompute priorities for all pending units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.RebalanceResponse
			if err := client.post(cmd.Context(), "/api/priority/rebalance", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Adjusted %d of %d pending unit(s)\n", resp.Adjusted, resp.Considered)
			return nil
		},
	}
}

func newPriorityBoostCommand(ctx *commandContext) *cobra.Command {
	var amount int

	cmd := &cobra.Command{
		Use:   "boost <group-id>",
		Short: "Raise priority for a group's pending units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			req := api.BoostGroupRequest{GroupID: args[0], Amount: amount}
			var resp struct {
				Boosted int `json:"boosted"`
			}
			if err := client.post(cmd.Context(), "/api/priority/boost", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Boosted %d unit(s) in group %s\n", resp.Boosted, args[0])
			return nil
		},
	}

	cmd.Flags().IntVar(&amount, "amount", 2, "Priority levels to add")
	return cmd
}

func newPriorityWeightsCommand(ctx *commandContext) *cobra.Command {
	var quality, age, userRequest, contextWeight float64

	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Replace the priority scoring weights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			req := api.UpdateWeightsRequest{
				Quality:     quality,
				Age:         age,
				UserRequest: userRequest,
				Context:     contextWeight,
			}
			var resp api.MutationResponse
			if err := client.put(cmd.Context(), "/api/priority/weights", req, &resp); err != nil {
				return err
			}
			return reportMutation(cmd, resp, "Weights updated")
		},
	}

	cmd.Flags().Float64Var(&quality, "quality", 0.4, "Quality score weight")
	cmd.Flags().Float64Var(&age, "age", 0.2, "Age weight")
	cmd.Flags().Float64Var(&userRequest, "user-request", 0.3, "User request weight")
	cmd.Flags().Float64Var(&contextWeight, "context", 0.1, "Shoot context weight")
	return cmd
}

func newPriorityStarvingCommand(ctx *commandContext) *cobra.Command {
	var boost bool

	cmd := &cobra.Command{
		Use:   "starving",
		Short: "List units past the starvation threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}

			if boost {
				var resp struct {
					Boosted    int `json:"boosted"`
					Candidates int `json:"candidates"`
				}
				if err := client.post(cmd.Context(), "/api/priority/starving/boost", nil, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Boosted %d of %d starving unit(s)\n", resp.Boosted, resp.Candidates)
				return nil
			}

			var resp api.StarvingResponse
			if err := client.get(cmd.Context(), "/api/priority/starving", &resp); err != nil {
				return err
			}
			if len(resp.Units) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No starving units.")
				return nil
			}
			rows := make([][]string, 0, len(resp.Units))
			for _, u := range resp.Units {
				rows = append(rows, []string{
					u.UnitID,
					strconv.Itoa(u.Priority),
					fmt.Sprintf("%.0fs", u.AgeSeconds),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRows(
				[]string{"UNIT", "PRIORITY", "AGE"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&boost, "boost", false, "Boost starving units instead of listing them")
	return cmd
}
