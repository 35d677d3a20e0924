package workflow_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
	"flowops/internal/store"
	"flowops/internal/testsupport"
	"flowops/internal/workflow"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) snapshot() []notifications.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifications.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *recordingPublisher) kinds() []notifications.Kind {
	events := p.snapshot()
	kinds := make([]notifications.Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	return kinds
}

type panickingPublisher struct {
	panicOn string
	inner   *recordingPublisher
}

func (p *panickingPublisher) Publish(ctx context.Context, ev notifications.Event) {
	if ev.Payload().TaskID == p.panicOn {
		panic("publisher exploded")
	}
	p.inner.Publish(ctx, ev)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func testDirectory() *directory.Static {
	return directory.NewStatic([]directory.Developer{
		{ID: "devA", Email: "a@example.com"},
		{ID: "devB", Email: "b@example.com"},
		{ID: "devC", Email: "c@example.com"},
	})
}

type harness struct {
	store   *store.Store
	manager *workflow.Manager
	events  *recordingPublisher
	clock   *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	events := &recordingPublisher{}
	clock := &fakeClock{now: baseTime}
	mgr := workflow.NewManager(st, testDirectory(), events, logging.NewNop(), workflow.WithClock(clock.Now))
	return &harness{store: st, manager: mgr, events: events, clock: clock}
}

func (h *harness) mustGet(t *testing.T, id string) release.Release {
	t.Helper()
	rel, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return rel
}

func mustTask(t *testing.T, rel release.Release, id string) release.Task {
	t.Helper()
	task, ok := rel.FindTask(id)
	if !ok {
		t.Fatalf("task %s not found in %s", id, rel.ID)
	}
	return *task
}

// memStore is an in-memory Store with the same versioned save semantics as
// the SQLite store.
type memStore struct {
	mu       sync.Mutex
	releases map[string]release.Release
	failSave error
}

func newMemStore() *memStore {
	return &memStore{releases: make(map[string]release.Release)}
}

func (s *memStore) Create(_ context.Context, rel *release.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.releases[rel.ID]; exists {
		return release.Wrap(release.ErrValidation, "create release", "duplicate id", nil)
	}
	rel.Version = 1
	s.releases[rel.ID] = rel.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.releases[id]
	if !ok {
		return release.Release{}, release.Wrap(release.ErrNotFound, "get release", id, nil)
	}
	return rel.Clone(), nil
}

func (s *memStore) Save(_ context.Context, rel *release.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	current, ok := s.releases[rel.ID]
	if !ok {
		return release.Wrap(release.ErrNotFound, "save release", rel.ID, nil)
	}
	if current.Version != rel.Version {
		return release.Wrap(release.ErrConflict, "save release", rel.ID, nil)
	}
	if err := rel.CheckOrder(); err != nil {
		return err
	}
	rel.Version++
	s.releases[rel.ID] = rel.Clone()
	return nil
}

func (s *memStore) List(_ context.Context) ([]release.Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]release.Release, 0, len(s.releases))
	for _, rel := range s.releases {
		out = append(out, rel.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ExistsActiveTask(_ context.Context, developerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rel := range s.releases {
		for _, task := range rel.Tasks {
			if task.DeveloperID == developerID && task.Status == release.StatusInProgress {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *memStore) FindStale(_ context.Context, status release.Status, before time.Time) ([]release.StaleTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []release.StaleTask
	for _, rel := range s.releases {
		for _, task := range rel.Tasks {
			if task.Status == status && task.StartedAt != nil && !task.StartedAt.After(before) {
				out = append(out, release.StaleTask{ReleaseID: rel.ID, ReleaseTitle: rel.Title, Task: task})
			}
		}
	}
	return out, nil
}

var errDiskFull = errors.New("disk full")
