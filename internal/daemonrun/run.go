package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"flowops/internal/config"
	"flowops/internal/daemon"
	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/preflight"
	"flowops/internal/store"
	"flowops/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the flowops daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "*.log", logPath)
	logConfigSnapshot(logger, cfg)
	preflight.LogResults(logging.NewComponentLogger(logger, "preflight"), preflight.RunAll(signalCtx, cfg))

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open release store", logging.Error(err))
		return err
	}
	defer st.Close()

	dispatcher, err := notifications.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("init notifications: %w", err)
	}
	dir := directory.New(cfg)
	manager := workflow.NewManager(st, dir, dispatcher, logger)
	detector := workflow.NewStaleDetector(st, dir, dispatcher, logger, workflow.StaleOptionsFromConfig(cfg))

	d, err := daemon.New(cfg, st, logger, manager, detector, dispatcher)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api_bind address"),
			logging.String(logging.FieldImpact, "release operations are unavailable"),
		)
		return err
	}

	// Recorded only while this process holds the daemon lock.
	pidPath := PIDFilePath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("write pid file", logging.Error(err))
	} else {
		defer os.Remove(pidPath)
	}

	<-signalCtx.Done()
	logger.Info("flowops daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// PIDFilePath is where a running daemon records its process id.
func PIDFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "flowops.pid")
}

// ReadPIDFile returns the pid recorded by a running daemon, or 0.
func ReadPIDFile(cfg *config.Config) int {
	raw, err := os.ReadFile(PIDFilePath(cfg))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return pid
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("config snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("event_log_enabled", cfg.Notifications.EventLogEnabled),
		logging.Bool("directory_remote", cfg.Directory.URL != ""),
		logging.Int("static_developers", len(cfg.Directory.Developers)),
		logging.Bool("stale_enabled", cfg.Stale.Enabled),
		logging.Duration("stale_interval", cfg.ScanInterval()),
		logging.Duration("stale_threshold", cfg.StaleThreshold()),
	)
}
