package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"flowops/internal/config"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
	"flowops/internal/store"
	"flowops/internal/workflow"
)

// Daemon owns the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	manager    *workflow.Manager
	detector   *workflow.StaleDetector
	dispatcher *notifications.Dispatcher
	api        *apiServer

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	mu        sync.Mutex
	startedAt time.Time
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	StaleEnabled bool
	Stats        release.Stats
	Sinks        []string
	Dispatch     notifications.Stats
	LastScan     *workflow.ScanReport
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, mgr *workflow.Manager, detector *workflow.StaleDetector, dispatcher *notifications.Dispatcher) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || mgr == nil || detector == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, logger, workflow manager, stale detector, and dispatcher")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      st,
		manager:    mgr,
		detector:   detector,
		dispatcher: dispatcher,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the dispatcher, the stale
// detector (when enabled), and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another flowops daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.dispatcher.Start()
	if d.cfg.Stale.Enabled {
		if err := d.detector.Start(runCtx); err != nil {
			cancel()
			d.dispatcher.Stop()
			_ = d.lock.Unlock()
			return fmt.Errorf("start stale detector: %w", err)
		}
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.detector.Stop()
		d.dispatcher.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()
	d.running.Store(true)

	d.logger.Info("flowops daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.Bool("stale_enabled", d.cfg.Stale.Enabled),
		logging.Any("sinks", d.dispatcher.Sinks()),
	)
	return nil
}

// Stop stops the API and background services and releases the daemon lock.
// Pending notifications are drained before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	d.api.stop()
	d.detector.Stop()
	d.dispatcher.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("flowops daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Manager exposes the workflow manager backing the API.
func (d *Daemon) Manager() *workflow.Manager {
	return d.manager
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// ScanStale runs one stale scan on demand.
func (d *Daemon) ScanStale(ctx context.Context) (workflow.ScanReport, error) {
	return d.detector.Scan(ctx)
}

// TestNotification delivers a synthetic record to every configured sink.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if len(d.dispatcher.Sinks()) == 0 {
		return false, "no notification sinks configured", nil
	}
	if err := d.dispatcher.SendTest(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    startedAt,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		StaleEnabled: d.cfg.Stale.Enabled,
		Sinks:        d.dispatcher.Sinks(),
		Dispatch:     d.dispatcher.Stats(),
	}
	if stats, err := d.store.Stats(ctx); err != nil {
		d.logger.Warn("store stats unavailable", logging.Error(err))
	} else {
		status.Stats = stats
	}
	if report, ok := d.detector.LastReport(); ok {
		status.LastScan = &report
	}
	return status
}
