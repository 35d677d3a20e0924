package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"flowops/internal/api"
	"flowops/internal/apiclient"
	"flowops/internal/daemonrun"
	"flowops/internal/preflight"
	"flowops/internal/release"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store, and notification status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, statusErr := client.Status(cmd.Context())
			if statusErr != nil && !errors.Is(statusErr, apiclient.ErrUnavailable) {
				return statusErr
			}
			if asJSON {
				if statusErr != nil {
					return writeJSON(cmd, map[string]any{
						"running": false,
						"address": client.BaseURL(),
						"pidFile": daemonrun.ReadPIDFile(cfg),
					})
				}
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			daemonLines := []statusLine{{label: "Config", kind: statusInfo, message: ctx.configPath}}
			if statusErr != nil {
				daemonLines = append(daemonLines, statusLine{label: "Daemon", kind: statusError, message: "not reachable at " + client.BaseURL()})
				if pid := daemonrun.ReadPIDFile(cfg); pid > 0 {
					daemonLines = append(daemonLines, statusLine{label: "PID file", kind: statusWarn,
						message: fmt.Sprintf("records pid %d; daemon may be hung or exited uncleanly", pid)})
				}
			} else {
				daemonLines = append(daemonLines, daemonStatusLines(status)...)
			}
			writeSection(out, "Daemon", daemonLines, colorize)

			if statusErr == nil {
				writeSection(out, "Releases", storeStatusLines(status.Store), colorize)
				writeSection(out, "Notifications", notificationStatusLines(status), colorize)
			}

			var checks []statusLine
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusWarn
				}
				checks = append(checks, statusLine{label: result.Name, kind: kind, message: result.Detail})
			}
			writeSection(out, "Checks", checks, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func daemonStatusLines(status api.DaemonStatus) []statusLine {
	lines := []statusLine{{label: "Daemon", kind: statusOK, message: fmt.Sprintf("running (pid %d)", status.PID)}}
	if started, err := time.Parse(time.RFC3339, status.StartedAt); err == nil {
		lines = append(lines, statusLine{label: "Uptime", kind: statusInfo, message: formatAge(time.Since(started))})
	}
	lines = append(lines,
		statusLine{label: "Database", kind: statusInfo, message: status.DatabasePath},
		statusLine{label: "Lock", kind: statusInfo, message: status.LockFilePath},
	)
	return lines
}

func storeStatusLines(stats api.StoreStats) []statusLine {
	lines := []statusLine{{
		label:   "Releases",
		kind:    statusInfo,
		message: fmt.Sprintf("%d total, %d completed", stats.Releases, stats.CompletedReleases),
	}}
	for _, status := range release.AllStatuses() {
		lines = append(lines, statusLine{label: status.Label(), kind: statusInfo, message: itoa(stats.Tasks[string(status)])})
	}
	return lines
}

func notificationStatusLines(status api.DaemonStatus) []statusLine {
	n := status.Notifications
	sinkKind := statusOK
	sinks := "none"
	if len(n.Sinks) == 0 {
		sinkKind = statusWarn
	} else {
		sinks = fmt.Sprint(n.Sinks)
	}
	lines := []statusLine{
		{label: "Sinks", kind: sinkKind, message: sinks},
		{label: "Delivered", kind: statusInfo, message: fmt.Sprint(n.Delivered)},
	}
	if n.Failed > 0 || n.Dropped > 0 {
		lines = append(lines, statusLine{label: "Failed/Dropped", kind: statusWarn, message: fmt.Sprintf("%d / %d", n.Failed, n.Dropped)})
	}

	switch {
	case !status.StaleEnabled:
		lines = append(lines, statusLine{label: "Stale scan", kind: statusInfo, message: "disabled"})
	case status.LastScan == nil:
		lines = append(lines, statusLine{label: "Stale scan", kind: statusInfo, message: "no scan yet"})
	default:
		kind := statusOK
		if status.LastScan.Reported > 0 {
			kind = statusWarn
		}
		lines = append(lines, statusLine{
			label:   "Stale scan",
			kind:    kind,
			message: fmt.Sprintf("%d stale task(s) at %s", status.LastScan.Found, displayTime(status.LastScan.FinishedAt)),
		})
	}
	return lines
}
