package main

import (
	"github.com/spf13/cobra"

	"darkroom/internal/api"
)

func newLaneCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lane",
		Short: "Pause and resume dispatch lanes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pause <lane>",
		Short: "Hold new submissions for a lane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.MutationResponse
			if err := client.post(cmd.Context(), "/api/lanes/"+args[0]+"/pause", nil, &resp); err != nil {
				return err
			}
			return reportMutation(cmd, resp, "Lane "+args[0]+" paused")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "resume <lane>",
		Short: "Release held submissions for a lane",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			var resp api.MutationResponse
			if err := client.post(cmd.Context(), "/api/lanes/"+args[0]+"/resume", nil, &resp); err != nil {
				return err
			}
			return reportMutation(cmd, resp, "Lane "+args[0]+" resumed")
		},
	})
	return cmd
}
