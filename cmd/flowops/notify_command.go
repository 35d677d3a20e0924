package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test notification through the daemon's sinks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.TestNotification(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !result.Sent {
				reason := result.Detail
				if result.Error != "" {
					reason = result.Error
				}
				fmt.Fprintf(out, "Notification not sent: %s\n", reason)
				return nil
			}
			fmt.Fprintln(out, "Test notification sent")
			if result.Detail != "" {
				fmt.Fprintln(out, result.Detail)
			}
			return nil
		},
	})
	return cmd
}
