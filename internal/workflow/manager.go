package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
)

// Store is the persistence surface the workflow needs.
type Store interface {
	Create(ctx context.Context, rel *release.Release) error
	Get(ctx context.Context, id string) (release.Release, error)
	Save(ctx context.Context, rel *release.Release) error
	List(ctx context.Context) ([]release.Release, error)
	ExistsActiveTask(ctx context.Context, developerID string) (bool, error)
	FindStale(ctx context.Context, status release.Status, before time.Time) ([]release.StaleTask, error)
}

// Messages carried by emitted events.
const (
	MessageTaskStarted   = "Developer started task"
	MessageTaskAssigned  = "Task assigned to you"
	MessageTaskCompleted = "Developer completed task"
	MessageHotfixAdded   = "Hotfix task added to release"
)

// Manager implements the release lifecycle and task transition operations.
type Manager struct {
	store     Store
	directory directory.Directory
	publisher notifications.Publisher
	logger    *slog.Logger

	now   func() time.Time
	newID func() string

	releaseLocks   *keyedMutex
	developerLocks *keyedMutex
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides release and task id generation.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewManager constructs a workflow manager. A nil publisher discards events.
func NewManager(store Store, dir directory.Directory, publisher notifications.Publisher, logger *slog.Logger, opts ...Option) *Manager {
	if publisher == nil {
		publisher = notifications.NopPublisher{}
	}
	m := &Manager{
		store:          store,
		directory:      dir,
		publisher:      publisher,
		logger:         logging.NewComponentLogger(logger, "workflow"),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		releaseLocks:   newKeyedMutex(),
		developerLocks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lockRelease(id string) func() {
	return m.releaseLocks.Lock(id)
}

func (m *Manager) lockDeveloper(id string) func() {
	return m.developerLocks.Lock(id)
}

func (m *Manager) opLogger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, m.logger)
}

func (m *Manager) loadTask(ctx context.Context, op, releaseID, taskID string) (release.Release, *release.Task, error) {
	rel, err := m.store.Get(ctx, releaseID)
	if err != nil {
		return release.Release{}, nil, err
	}
	task, ok := rel.FindTask(taskID)
	if !ok {
		return release.Release{}, nil, release.Wrap(release.ErrNotFound, op, "task "+quote(taskID)+" in release "+quote(releaseID), nil)
	}
	return rel, task, nil
}

func quote(s string) string {
	return "\"" + s + "\""
}

func timePtr(t time.Time) *time.Time {
	return &t
}
