package preflight

import (
	"context"
	"log/slog"

	"flowops/internal/config"
	"flowops/internal/logging"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Directory.URL != "" {
		results = append(results, CheckDirectoryService(ctx, cfg.Directory.URL, cfg.Directory.APIToken))
	} else {
		results = append(results, CheckStaticDirectory(cfg))
	}
	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfyTopic(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

// LogResults writes each result at info (passed) or warn (failed) level.
func LogResults(logger *slog.Logger, results []Result) int {
	failed := 0
	for _, result := range results {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		failed++
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart the daemon"),
		)
	}
	return failed
}
