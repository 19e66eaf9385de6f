package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"darkroom/internal/api"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage individual processing jobs",
	}
	cmd.AddCommand(newJobSubmitCommand(ctx))
	cmd.AddCommand(newJobShowCommand(ctx))
	cmd.AddCommand(newJobCancelCommand(ctx))
	cmd.AddCommand(newJobRetryCommand(ctx))
	return cmd
}

func newJobSubmitCommand(ctx *commandContext) *cobra.Command {
	var userRequested bool
	var configJSON string

	cmd := &cobra.Command{
		Use:   "submit <unit-id>",
		Short: "Submit one unit for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			req := api.SubmitJobRequest{UnitID: args[0], UserRequested: userRequested}
			if strings.TrimSpace(configJSON) != "" {
				if !json.Valid([]byte(configJSON)) {
					return fmt.Errorf("--config is not valid JSON")
				}
				req.Config = json.RawMessage(configJSON)
			}
			var resp struct {
				JobID string `json:"job_id"`
			}
			if err := client.post(cmd.Context(), "/api/jobs", req, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", resp.JobID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&userRequested, "user-requested", false, "Mark the submission as explicitly user requested")
	cmd.Flags().StringVar(&configJSON, "config", "", "Processing config as a JSON object")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var view api.JobView
			if err := client.get(cmd.Context(), "/api/jobs/"+args[0], &view); err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:      %s\n", view.JobID)
			fmt.Fprintf(out, "Unit:     %s\n", view.UnitID)
			if view.GroupID != "" {
				fmt.Fprintf(out, "Group:    %s\n", view.GroupID)
			}
			fmt.Fprintf(out, "Status:   %s\n", view.Status)
			fmt.Fprintf(out, "Priority: %d (%s lane)\n", view.Priority, view.Lane)
			if view.RetryCount > 0 {
				fmt.Fprintf(out, "Retries:  %d (origin %s)\n", view.RetryCount, view.OriginJobID)
			}
			if view.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:    %s\n", view.ErrorMessage)
			}
			fmt.Fprintf(out, "Created:  %s\n", view.CreatedAt)
			if view.StartedAt != "" {
				fmt.Fprintf(out, "Started:  %s\n", view.StartedAt)
			}
			if view.CompletedAt != "" {
				fmt.Fprintf(out, "Finished: %s\n", view.CompletedAt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit raw JSON")
	return cmd
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.MutationResponse
			if err := client.post(cmd.Context(), "/api/jobs/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			return reportMutation(cmd, resp, "Job "+args[0]+" cancelled")
		},
	}
}

func newJobRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Retry a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp struct {
				JobID string `json:"job_id"`
			}
			if err := client.post(cmd.Context(), "/api/jobs/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retrying as job %s\n", resp.JobID)
			return nil
		},
	}
}
