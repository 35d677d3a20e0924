package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flowops/internal/eventlog"
	"flowops/internal/notifications"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		follow bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show notification events from the local event log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Notifications.EventLogPath
			if !cfg.Notifications.EventLogEnabled || strings.TrimSpace(path) == "" {
				return errors.New("event log is disabled (set notifications.event_log_enabled)")
			}

			snap, err := eventlog.Tail(path, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(rec notifications.Record) error {
				if asJSON {
					return writeJSON(cmd, rec)
				}
				printEvent(out, rec)
				return nil
			}
			for _, rec := range snap.Records {
				if err := emit(rec); err != nil {
					return err
				}
			}
			if !follow {
				if len(snap.Records) == 0 && !asJSON {
					fmt.Fprintln(out, "No events")
				}
				return nil
			}
			return eventlog.Follow(cmd.Context(), path, snap.Offset, 500*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recent events to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output one JSON object per event")
	return cmd
}

func printEvent(w io.Writer, rec notifications.Record) {
	target := rec.DeveloperID
	if rec.Email != "" {
		target = rec.Email
	}
	fmt.Fprintf(w, "%s  %-20s %-14s %s/%s  %s\n",
		rec.Time.Local().Format("2006-01-02 15:04:05"),
		rec.Kind,
		dash(target),
		dash(rec.ReleaseID),
		dash(rec.TaskID),
		rec.Message,
	)
}
