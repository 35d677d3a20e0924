package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"flowops/internal/api"
	"flowops/internal/release"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func statusLabel(value string) string {
	if status, ok := release.ParseStatus(value); ok {
		return status.Label()
	}
	return value
}

// displayTime renders an API timestamp in local time.
func displayTime(value string) string {
	ts, err := api.ParseTime(value)
	if err != nil || ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func formatAge(d time.Duration) string {
	if d < time.Hour {
		return d.Round(time.Minute).String()
	}
	hours := int(d.Hours())
	if hours < 48 {
		return strconv.Itoa(hours) + "h"
	}
	return strconv.Itoa(hours/24) + "d" + strconv.Itoa(hours%24) + "h"
}
