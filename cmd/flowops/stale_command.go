package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStaleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "Stale task detection",
	}

	var asJSON bool
	scan := &cobra.Command{
		Use:   "scan",
		Short: "Run a stale task scan now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			report, err := client.ScanStale(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned tasks started before %s\n", displayTime(report.Cutoff))
			fmt.Fprintf(out, "Stale: %d  Reported: %d  Placeholder: %d  Skipped: %d\n",
				report.Found, report.Reported, report.Fallbacks, report.Skipped)
			return nil
		},
	}
	scan.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.AddCommand(scan)
	return cmd
}
