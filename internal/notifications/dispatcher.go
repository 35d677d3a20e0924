package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flowops/internal/config"
	"flowops/internal/logging"
)

// Publisher accepts events without blocking and without reporting failure.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// Options tunes a Dispatcher.
type Options struct {
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	// Enabled filters kinds before enqueueing. A nil map enables every kind.
	Enabled map[Kind]bool
	Now     func() time.Time
}

// Stats reports dispatcher counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

type envelope struct {
	ctx context.Context
	rec Record
}

// Dispatcher buffers events and delivers them to sinks on a worker goroutine.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
	opts   Options

	mu      sync.RWMutex
	queue   chan envelope
	started bool
	closed  bool
	wg      sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher for sinks. Call Start to begin delivery;
// events published before Start wait in the buffer.
func NewDispatcher(sinks []Sink, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		sinks:  sinks,
		logger: logging.NewComponentLogger(logger, "notifications"),
		opts:   opts,
		queue:  make(chan envelope, opts.QueueSize),
	}
}

// NewFromConfig builds the sinks named by the [notifications] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Dispatcher, error) {
	var sinks []Sink
	if cfg.Notifications.NtfyTopic != "" {
		sinks = append(sinks, NewNtfySink(cfg.Notifications.NtfyTopic, cfg.NotifyTimeout()))
	}
	if cfg.Notifications.EventLogEnabled {
		eventLog, err := NewEventLogSink(cfg.Notifications.EventLogPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, eventLog)
	}
	return NewDispatcher(sinks, Options{
		QueueSize:   cfg.Notifications.QueueSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		Enabled: map[Kind]bool{
			KindTaskAssigned:      cfg.Notifications.TaskAssigned,
			KindTaskCompleted:     cfg.Notifications.TaskCompleted,
			KindHotfixTaskAdded:   cfg.Notifications.HotfixAdded,
			KindStaleTaskDetected: cfg.Notifications.StaleDetected,
		},
	}, logger), nil
}

// Sinks returns the sink names in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, sink := range d.sinks {
		names = append(names, sink.Name())
	}
	return names
}

// Start launches the delivery worker. It is a no-op when already started.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.wg.Add(1)
	go d.run()
}

// Stop refuses new events, drains the buffer, and closes closable sinks.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		d.wg.Wait()
	}
	for _, sink := range d.sinks {
		if closer, ok := sink.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				d.logger.Warn("close sink failed", logging.String("sink", sink.Name()), logging.Error(err))
			}
		}
	}
}

// Publish enqueues ev. When the buffer is full or the dispatcher is stopped the
// event is dropped and a warning is logged.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	if ev == nil {
		return
	}
	if d.opts.Enabled != nil && !d.opts.Enabled[ev.Kind()] {
		d.logger.Debug("event kind disabled", logging.String(logging.FieldEventKind, string(ev.Kind())))
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	env := envelope{
		ctx: context.WithoutCancel(ctx),
		rec: NewRecord(uuid.NewString(), d.opts.Now(), ev),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.logger.Debug("event dropped after stop", logging.String(logging.FieldEventKind, env.rec.Kind))
		return
	}
	select {
	case d.queue <- env:
	default:
		d.dropped.Add(1)
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "event dropped; notification buffer full", "event_dropped",
			logging.String(logging.FieldEventKind, env.rec.Kind),
			logging.String(logging.FieldTaskID, env.rec.TaskID),
			logging.Int("queue_size", d.opts.QueueSize),
			logging.String(logging.FieldErrorHint, "raise notifications.queue_size or check sink latency"),
			logging.String(logging.FieldImpact, "developer will not receive this notification"),
		)
	}
}

// Deliver sends rec synchronously to every sink and returns the joined errors.
func (d *Dispatcher) Deliver(ctx context.Context, rec Record) error {
	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendTest delivers a synthetic record to every sink.
func (d *Dispatcher) SendTest(ctx context.Context) error {
	return d.Deliver(ctx, Record{
		ID:      uuid.NewString(),
		Time:    d.opts.Now().UTC(),
		Kind:    KindTest,
		Message: "Notification system test",
	})
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queued:    len(d.queue),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for env := range d.queue {
		d.dispatch(env)
	}
}

func (d *Dispatcher) dispatch(env envelope) {
	logger := logging.WithContext(env.ctx, d.logger).With(
		logging.String(logging.FieldEventKind, env.rec.Kind),
		logging.String(logging.FieldReleaseID, env.rec.ReleaseID),
		logging.String(logging.FieldTaskID, env.rec.TaskID),
	)
	for _, sink := range d.sinks {
		if err := d.deliverWithRetry(env.ctx, sink, env.rec); err != nil {
			d.failed.Add(1)
			logging.WarnWithContext(logger, "event delivery failed", "event_delivery_failed",
				logging.String("sink", sink.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check sink endpoint reachability"),
				logging.String(logging.FieldImpact, "notification not delivered; workflow state unaffected"),
			)
			continue
		}
		d.delivered.Add(1)
		logger.Debug("event delivered", logging.String("sink", sink.Name()))
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, sink Sink, rec Record) error {
	delay := d.opts.RetryDelay
	var err error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		if err = sink.Deliver(ctx, rec); err == nil {
			return nil
		}
		if attempt == d.opts.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}
