package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"darkroom/internal/api"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage processing batches",
	}
	cmd.AddCommand(newBatchListCommand(ctx))
	cmd.AddCommand(newBatchStartCommand(ctx))
	cmd.AddCommand(newBatchShowCommand(ctx))
	cmd.AddCommand(newBatchActionCommand(ctx, "pause", "Pause a running batch"))
	cmd.AddCommand(newBatchActionCommand(ctx, "resume", "Resume a paused batch"))
	cmd.AddCommand(newBatchActionCommand(ctx, "cancel", "Cancel a batch"))
	cmd.AddCommand(newBatchCleanupCommand(ctx))
	cmd.AddCommand(newBatchRecoverCommand(ctx))
	return cmd
}

func newBatchRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Re-scan batch snapshots and pause interrupted batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.RecoveryResponse
			if err := client.post(cmd.Context(), "/api/batches/recover", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recovered %d batch(es), %d snapshot(s) unreadable\n", resp.Recovered, resp.Failed)
			return nil
		},
	}
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.BatchListResponse
			if err := client.get(cmd.Context(), "/api/batches", &resp); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if len(resp.Batches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches.")
				return nil
			}
			rows := make([][]string, 0, len(resp.Batches))
			for _, b := range resp.Batches {
				rows = append(rows, []string{
					b.BatchID,
					b.GroupID,
					b.Status,
					fmt.Sprintf("%d/%d", b.ProcessedCount+b.FailedCount, b.TotalUnits),
					fmt.Sprintf("%.1f%%", b.ProgressPercent),
					b.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRows(
				[]string{"BATCH", "GROUP", "STATUS", "DONE", "PROGRESS", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func newBatchStartCommand(ctx *commandContext) *cobra.Command {
	var groupID string
	var configJSON string

	cmd := &cobra.Command{
		Use:   "start <unit-id>...",
		Short: "Start a batch over the given units",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			req := api.StartBatchRequest{UnitIDs: args, GroupID: groupID}
			if strings.TrimSpace(configJSON) != "" {
				if !json.Valid([]byte(configJSON)) {
					return fmt.Errorf("--config is not valid JSON")
				}
				req.Config = json.RawMessage(configJSON)
			}
			var view api.BatchView
			if err := client.post(cmd.Context(), "/api/batches", req, &view); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started batch %s (%d units)\n", view.BatchID, view.TotalUnits)
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "Group id to attach to the batch")
	cmd.Flags().StringVar(&configJSON, "config", "", "Processing config as a JSON object")
	return cmd
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var view api.BatchView
			if err := client.get(cmd.Context(), "/api/batches/"+args[0], &view); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Batch:     %s\n", view.BatchID)
			if view.GroupID != "" {
				fmt.Fprintf(out, "Group:     %s\n", view.GroupID)
			}
			fmt.Fprintf(out, "Status:    %s\n", view.Status)
			fmt.Fprintf(out, "Progress:  %d processed, %d failed of %d (%.1f%%)\n",
				view.ProcessedCount, view.FailedCount, view.TotalUnits, view.ProgressPercent)
			fmt.Fprintf(out, "Created:   %s\n", view.CreatedAt)
			if view.StartedAt != "" {
				fmt.Fprintf(out, "Started:   %s\n", view.StartedAt)
			}
			if view.PausedAt != "" {
				fmt.Fprintf(out, "Paused:    %s\n", view.PausedAt)
			}
			if view.CompletedAt != "" {
				fmt.Fprintf(out, "Completed: %s\n", view.CompletedAt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func newBatchActionCommand(ctx *commandContext, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <batch-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.MutationResponse
			if err := client.post(cmd.Context(), "/api/batches/"+args[0]+"/"+action, nil, &resp); err != nil {
				return err
			}
			return reportMutation(cmd, resp, "Batch "+args[0]+" "+pastTense(action))
		},
	}
}

func newBatchCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old completed and cancelled batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.CleanupResponse
			req := api.CleanupRequest{OlderThanDays: olderThan}
			if err := client.post(cmd.Context(), "/api/batches/cleanup", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batch record(s)\n", resp.Removed)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 0, "Age cutoff in days (0 uses the configured retention)")
	return cmd
}

func reportMutation(cmd *cobra.Command, resp api.MutationResponse, success string) error {
	if resp.OK {
		fmt.Fprintln(cmd.OutOrStdout(), success)
		return nil
	}
	reason := resp.Reason
	if reason == "" {
		reason = "operation had no effect"
	}
	return fmt.Errorf("%s", reason)
}

func pastTense(action string) string {
	switch action {
	case "cancel":
		return "cancelled"
	case "retry":
		return "retried"
	default:
		return action + "d"
	}
}
