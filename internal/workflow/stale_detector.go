package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"flowops/internal/config"
	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
)

// ErrScanInProgress is returned by Scan when another scan has not finished.
var ErrScanInProgress = errors.New("stale scan already in progress")

const (
	defaultScanInterval     = 24 * time.Hour
	defaultStaleThreshold   = 48 * time.Hour
	defaultPlaceholderEmail = "no-reply@opsflow.com"
)

// StaleOptions tunes the detector. Zero values fall back to a 24h interval,
// a 48h threshold, and the default placeholder address.
type StaleOptions struct {
	Interval         time.Duration
	Threshold        time.Duration
	PlaceholderEmail string
	RunOnStart       bool
	Now              func() time.Time
}

// StaleOptionsFromConfig maps the [stale] config section.
func StaleOptionsFromConfig(cfg *config.Config) StaleOptions {
	if cfg == nil {
		return StaleOptions{}
	}
	return StaleOptions{
		Interval:         cfg.ScanInterval(),
		Threshold:        cfg.StaleThreshold(),
		PlaceholderEmail: cfg.Stale.PlaceholderEmail,
		RunOnStart:       cfg.Stale.RunOnStart,
	}
}

// ScanReport summarizes one stale scan.
type ScanReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Cutoff     time.Time
	Found      int
	Reported   int
	Fallbacks  int
	Skipped    int
}

// StaleDetector periodically reports tasks stuck in InProgress.
type StaleDetector struct {
	store     Store
	directory directory.Directory
	publisher notifications.Publisher
	logger    *slog.Logger
	opts      StaleOptions

	scanning atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	last    *ScanReport
}

// NewStaleDetector constructs a detector.
func NewStaleDetector(store Store, dir directory.Directory, publisher notifications.Publisher, logger *slog.Logger, opts StaleOptions) *StaleDetector {
	if opts.Interval <= 0 {
		opts.Interval = defaultScanInterval
	}
	if opts.Threshold <= 0 {
		opts.Threshold = defaultStaleThreshold
	}
	if opts.PlaceholderEmail == "" {
		opts.PlaceholderEmail = defaultPlaceholderEmail
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	return &StaleDetector{
		store:     store,
		directory: dir,
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "stale"),
		opts:      opts,
	}
}

// Start launches the periodic scan loop.
func (d *StaleDetector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("stale detector already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop(loopCtx)

	d.logger.Info(
		"stale detector started",
		logging.String(logging.FieldEventType, "stale_detector_started"),
		logging.Duration("interval", d.opts.Interval),
		logging.Duration("threshold", d.opts.Threshold),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish.
func (d *StaleDetector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()
}

// LastReport returns the most recent completed scan, if any.
func (d *StaleDetector) LastReport() (ScanReport, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return ScanReport{}, false
	}
	return *d.last, true
}

func (d *StaleDetector) loop(ctx context.Context) {
	defer d.wg.Done()
	if d.opts.RunOnStart {
		d.tick(ctx)
	}
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *StaleDetector) tick(ctx context.Context) {
	_, err := d.Scan(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		d.logger.Info("stale scan skipped; previous scan still running",
			logging.String(logging.FieldEventType, "stale_scan_skipped"))
	case errors.Is(err, context.Canceled):
		d.logger.Debug("stale scan canceled", logging.Error(err))
	default:
		logging.ErrorWithContext(d.logger, "stale scan failed", "stale_scan_failed",
			logging.String(logging.FieldErrorHint, "check database availability"),
			logging.Error(err),
		)
	}
}

// Scan runs one detection pass. Only one pass runs at a time; a concurrent
// call returns ErrScanInProgress without scanning.
func (d *StaleDetector) Scan(ctx context.Context) (ScanReport, error) {
	if !d.scanning.CompareAndSwap(false, true) {
		return ScanReport{}, ErrScanInProgress
	}
	defer d.scanning.Store(false)

	now := d.opts.Now()
	report := ScanReport{StartedAt: now, Cutoff: now.Add(-d.opts.Threshold)}
	stale, err := d.store.FindStale(ctx, release.StatusInProgress, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("find stale tasks: %w", err)
	}
	report.Found = len(stale)

	for _, item := range stale {
		if ctx.Err() != nil {
			report.Skipped += report.Found - report.Reported - report.Skipped
			break
		}
		fallback, err := d.report(ctx, now, item)
		if err != nil {
			report.Skipped++
			logging.WarnWithContext(
				logging.WithContext(logging.WithTaskID(logging.WithReleaseID(ctx, item.ReleaseID), item.Task.ID), d.logger),
				"stale task report failed", "stale_report_failed",
				logging.String(logging.FieldErrorHint, "task will be retried on the next scan"),
				logging.Error(err),
			)
			continue
		}
		report.Reported++
		if fallback {
			report.Fallbacks++
		}
	}

	report.FinishedAt = d.opts.Now()
	d.mu.Lock()
	d.last = &report
	d.mu.Unlock()

	d.logger.Info(
		"stale scan finished",
		logging.String(logging.FieldEventType, "stale_scan_finished"),
		logging.Int("found", report.Found),
		logging.Int("reported", report.Reported),
		logging.Int("fallbacks", report.Fallbacks),
		logging.Int("skipped", report.Skipped),
	)
	return report, nil
}

// report publishes one StaleTaskDetected event. Panics raised by the
// directory or publisher are converted to errors so the scan continues.
func (d *StaleDetector) report(ctx context.Context, now time.Time, item release.StaleTask) (fallback bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reporting stale task: %v", r)
		}
	}()

	email := d.opts.PlaceholderEmail
	fallback = true
	if item.Task.HasDeveloper() {
		dev, lookupErr := d.directory.Resolve(ctx, item.Task.DeveloperID)
		if lookupErr == nil && dev.Email != "" {
			email = dev.Email
			fallback = false
		} else if lookupErr != nil {
			d.logger.Debug("stale task developer unresolved; using placeholder",
				logging.String(logging.FieldDeveloperID, item.Task.DeveloperID),
				logging.Error(lookupErr),
			)
		}
	}

	var startedAt time.Time
	if item.Task.StartedAt != nil {
		startedAt = *item.Task.StartedAt
	}
	err = safePublish(ctx, d.publisher, notifications.StaleTaskDetected{
		Details: notifications.Details{
			DeveloperID: item.Task.DeveloperID,
			Email:       email,
			ReleaseID:   item.ReleaseID,
			TaskID:      item.Task.ID,
			TaskTitle:   item.Task.Title,
			Message:     staleMessage(d.opts.Threshold),
		},
		StartedAt: startedAt,
		Age:       now.Sub(startedAt),
	})
	return fallback, err
}

func staleMessage(threshold time.Duration) string {
	hours := threshold.Hours()
	if hours == math.Trunc(hours) {
		return fmt.Sprintf("Task has been in progress for more than %d hours.", int(hours))
	}
	return fmt.Sprintf("Task has been in progress for more than %s.", threshold)
}
