package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
	"flowops/internal/testsupport"
	"flowops/internal/workflow"
)

func TestCreateReleaseAssignsOrderAndIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rel, err := h.manager.CreateRelease(ctx, release.Draft{
		Title: "  Spring   launch ",
		Tasks: []release.TaskDraft{
			{Title: "Build"},
			{ID: "deploy", Title: "Deploy", Status: release.StatusTodo},
		},
	})
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if rel.ID == "" || rel.Title != "Spring launch" || rel.Completed {
		t.Fatalf("unexpected release: %+v", rel)
	}
	if rel.Tasks[0].ID == "" || rel.Tasks[0].OrderIndex != 1 || rel.Tasks[1].ID != "deploy" || rel.Tasks[1].OrderIndex != 2 {
		t.Fatalf("unexpected tasks: %+v", rel.Tasks)
	}

	got, err := h.manager.GetRelease(ctx, rel.ID)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if got.Version != 1 || len(got.Tasks) != 2 {
		t.Fatalf("unexpected persisted release: %+v", got)
	}
	if len(h.events.snapshot()) != 0 {
		t.Fatalf("create should not publish events, got %v", h.events.kinds())
	}
}

func TestCreateReleaseRejectsNonTodoStatus(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.CreateRelease(context.Background(), release.Draft{
		Title: "R",
		Tasks: []release.TaskDraft{{Title: "A", Status: release.StatusCompleted}},
	})
	if !errors.Is(err, release.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetReleaseMissing(t *testing.T) {
	h := newHarness(t)
	if _, err := h.manager.GetRelease(context.Background(), "nope"); !errors.Is(err, release.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSequencingAndCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1", "T2")

	_, err := h.manager.StartTask(ctx, "R", "R-t2", "devA")
	var seqErr *release.SequenceError
	if !errors.As(err, &seqErr) || !errors.Is(err, release.ErrSequenceViolation) {
		t.Fatalf("expected sequence violation, got %v", err)
	}
	if seqErr.Blocking.ID != "R-t1" {
		t.Fatalf("expected blocker R-t1, got %s", seqErr.Blocking.ID)
	}

	started, err := h.manager.StartTask(ctx, "R", "R-t1", "devA")
	if err != nil {
		t.Fatalf("StartTask T1: %v", err)
	}
	if started.Status != release.StatusInProgress || started.DeveloperID != "devA" || started.StartedAt == nil || !started.StartedAt.Equal(baseTime) {
		t.Fatalf("unexpected started task: %+v", started)
	}

	if _, err := h.manager.StartTask(ctx, "R", "R-t1", "devB"); !errors.Is(err, release.ErrInvalidState) {
		t.Fatalf("expected invalid state restarting T1, got %v", err)
	}

	// devA restarting its own in-progress task is rejected before the status check.
	if _, err := h.manager.StartTask(ctx, "R", "R-t1", "devA"); !errors.Is(err, release.ErrDeveloperBusy) {
		t.Fatalf("expected developer busy, got %v", err)
	}

	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("CompleteTask T1: %v", err)
	}
	if rel := h.mustGet(t, "R"); rel.Completed {
		t.Fatal("release should stay open while T2 is todo")
	}

	if _, err := h.manager.StartTask(ctx, "R", "R-t2", "devA"); err != nil {
		t.Fatalf("StartTask T2: %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t2", "devA"); err != nil {
		t.Fatalf("CompleteTask T2: %v", err)
	}
	if rel := h.mustGet(t, "R"); !rel.Completed {
		t.Fatal("release should be completed after last task")
	}

	want := []notifications.Kind{
		notifications.KindTaskAssigned,
		notifications.KindTaskCompleted,
		notifications.KindTaskAssigned,
		notifications.KindTaskCompleted,
	}
	got := h.events.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	last, ok := h.events.snapshot()[3].(notifications.TaskCompleted)
	if !ok || !last.ReleaseCompleted || last.Email != "a@example.com" || last.TaskTitle != "T2" {
		t.Fatalf("unexpected completion event: %+v", h.events.snapshot()[3])
	}
}

func TestStartTaskDeveloperBusyAcrossReleases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R1", "T1")
	testsupport.MustCreateRelease(t, h.store, "R2", "T5")

	if _, err := h.manager.StartTask(ctx, "R1", "R1-t1", "devA"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if _, err := h.manager.StartTask(ctx, "R2", "R2-t1", "devA"); !errors.Is(err, release.ErrDeveloperBusy) {
		t.Fatalf("expected developer busy, got %v", err)
	}
	if task := mustTask(t, h.mustGet(t, "R2"), "R2-t1"); task.Status != release.StatusTodo || task.HasDeveloper() {
		t.Fatalf("busy start must not mutate: %+v", task)
	}
}

func TestStartTaskErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1")

	tests := []struct {
		name      string
		releaseID string
		taskID    string
		dev       string
		want      error
	}{
		{"unknown developer", "R", "R-t1", "ghost", release.ErrNotFound},
		{"missing release", "missing", "R-t1", "devA", release.ErrNotFound},
		{"missing task", "R", "R-t9", "devA", release.ErrNotFound},
		{"empty developer", "R", "R-t1", "", release.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.manager.StartTask(ctx, tc.releaseID, tc.taskID, tc.dev); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := len(h.events.snapshot()); n != 0 {
		t.Fatalf("failed starts published %d events", n)
	}
}

func TestCompleteTaskErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1", "T2")
	if _, err := h.manager.StartTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "devB"); !errors.Is(err, release.ErrWrongDeveloper) {
		t.Fatalf("expected wrong developer, got %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t2", "devA"); !errors.Is(err, release.ErrInvalidState) {
		t.Fatalf("expected invalid state for todo task, got %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "ghost"); !errors.Is(err, release.ErrNotFound) {
		t.Fatalf("expected not found for unknown developer, got %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t7", "devA"); !errors.Is(err, release.ErrNotFound) {
		t.Fatalf("expected not found for missing task, got %v", err)
	}

	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "devA"); !errors.Is(err, release.ErrInvalidState) {
		t.Fatalf("expected invalid state completing twice, got %v", err)
	}
}

func TestAddHotfixReopensCompletedRelease(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1")
	if _, err := h.manager.StartTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if _, err := h.manager.CompleteTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if !h.mustGet(t, "R").Completed {
		t.Fatal("expected completed release")
	}
	before := len(h.events.snapshot())

	task, err := h.manager.AddHotfixTask(ctx, "R", release.TaskDraft{Title: "fix", Status: release.StatusCompleted})
	if err != nil {
		t.Fatalf("AddHotfixTask: %v", err)
	}
	if task.OrderIndex != 2 || task.Status != release.StatusTodo {
		t.Fatalf("unexpected hotfix task: %+v", task)
	}
	rel := h.mustGet(t, "R")
	if rel.Completed || len(rel.Tasks) != 2 {
		t.Fatalf("expected reopened release with 2 tasks: %+v", rel)
	}
	if len(h.events.snapshot()) != before {
		t.Fatal("hotfix without developer must not publish")
	}
}

func TestAddHotfixWithDeveloperPublishes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1")

	task, err := h.manager.AddHotfixTask(ctx, "R", release.TaskDraft{Title: "patch", DeveloperID: "devB"})
	if err != nil {
		t.Fatalf("AddHotfixTask: %v", err)
	}
	events := h.events.snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev, ok := events[0].(notifications.HotfixTaskAdded)
	if !ok {
		t.Fatalf("expected HotfixTaskAdded, got %T", events[0])
	}
	if ev.TaskID != task.ID || ev.Email != "b@example.com" || ev.OrderIndex != 2 || ev.Reopened {
		t.Fatalf("unexpected event: %+v", ev)
	}

	if _, err := h.manager.AddHotfixTask(ctx, "R", release.TaskDraft{Title: "orphan", DeveloperID: "ghost"}); err != nil {
		t.Fatalf("unknown hotfix developer should not fail the append: %v", err)
	}
	if got := h.events.snapshot(); len(got) != 2 || got[1].Payload().Email != "" {
		t.Fatalf("expected second event without email, got %+v", got)
	}
}

func TestAddHotfixMissingRelease(t *testing.T) {
	h := newHarness(t)
	if _, err := h.manager.AddHotfixTask(context.Background(), "missing", release.TaskDraft{Title: "x"}); !errors.Is(err, release.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAssignDeveloperBypassesActiveTaskRule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R1", "T1")
	testsupport.MustCreateRelease(t, h.store, "R2", "T1")
	if _, err := h.manager.StartTask(ctx, "R1", "R1-t1", "devA"); err != nil {
		t.Fatalf("StartTask R1: %v", err)
	}
	if _, err := h.manager.StartTask(ctx, "R2", "R2-t1", "devB"); err != nil {
		t.Fatalf("StartTask R2: %v", err)
	}

	task, err := h.manager.AssignDeveloper(ctx, "R2", "R2-t1", "devA")
	if err != nil {
		t.Fatalf("AssignDeveloper: %v", err)
	}
	if task.DeveloperID != "devA" || task.Status != release.StatusInProgress {
		t.Fatalf("unexpected assigned task: %+v", task)
	}
	events := h.events.snapshot()
	ev, ok := events[len(events)-1].(notifications.TaskAssigned)
	if !ok || ev.Source != notifications.AssignedByDirect || ev.Message != workflow.MessageTaskAssigned {
		t.Fatalf("unexpected assign event: %+v", events[len(events)-1])
	}

	if _, err := h.manager.AssignDeveloper(ctx, "R2", "R2-t1", "ghost"); !errors.Is(err, release.ErrNotFound) {
		t.Fatalf("expected not found for unknown developer, got %v", err)
	}
}

func TestSaveFailureSkipsEvents(t *testing.T) {
	st := newMemStore()
	events := &recordingPublisher{}
	mgr := workflow.NewManager(st, testDirectory(), events, logging.NewNop())
	ctx := context.Background()

	rel, err := mgr.CreateRelease(ctx, release.Draft{Title: "R", Tasks: []release.TaskDraft{{ID: "t1", Title: "A"}}})
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	st.failSave = errDiskFull

	_, err = mgr.StartTask(ctx, rel.ID, "t1", "devA")
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if kind := release.Kind(err); kind != release.KindInternal {
		t.Fatalf("storage error classified as %s", kind)
	}
	if n := len(events.snapshot()); n != 0 {
		t.Fatalf("expected no events after failed save, got %d", n)
	}
}

func TestConcurrentStartsSameDeveloperOnlyOneWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const releases = 6
	for i := range releases {
		testsupport.MustCreateRelease(t, h.store, fmt.Sprintf("R%d", i), "T1")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		busy int
	)
	for i := range releases {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.manager.StartTask(ctx, id, id+"-t1", "devA")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, release.ErrDeveloperBusy):
				busy++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("R%d", i))
	}
	wg.Wait()

	if ok != 1 || busy != releases-1 {
		t.Fatalf("expected exactly one winner, got ok=%d busy=%d", ok, busy)
	}
}

func TestConcurrentTransitionsOnOneReleaseKeepAllUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R", "T1")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := h.manager.AddHotfixTask(ctx, "R", release.TaskDraft{Title: fmt.Sprintf("fix %d", n)}); err != nil {
				t.Errorf("AddHotfixTask: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rel := h.mustGet(t, "R")
	if len(rel.Tasks) != 9 {
		t.Fatalf("expected 9 tasks, got %d", len(rel.Tasks))
	}
	if err := rel.CheckOrder(); err != nil {
		t.Fatalf("order broken: %v", err)
	}
}

func TestDeveloperIDMustBeCanonical(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.MustCreateRelease(t, h.store, "R1", "T1")
	testsupport.MustCreateRelease(t, h.store, "R2", "T1")

	if _, err := h.manager.StartTask(ctx, "R1", "R1-t1", "devA"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}

	for _, id := range []string{" devA", "devA ", "\tdevA"} {
		if _, err := h.manager.StartTask(ctx, "R2", "R2-t1", id); !errors.Is(err, release.ErrValidation) {
			t.Fatalf("StartTask(%q): expected validation error, got %v", id, err)
		}
		if _, err := h.manager.CompleteTask(ctx, "R1", "R1-t1", id); !errors.Is(err, release.ErrValidation) {
			t.Fatalf("CompleteTask(%q): expected validation error, got %v", id, err)
		}
		if _, err := h.manager.AssignDeveloper(ctx, "R2", "R2-t1", id); !errors.Is(err, release.ErrValidation) {
			t.Fatalf("AssignDeveloper(%q): expected validation error, got %v", id, err)
		}
	}

	other := mustTask(t, h.mustGet(t, "R2"), "R2-t1")
	if other.Status != release.StatusTodo || other.DeveloperID != "" {
		t.Fatalf("R2-t1 must be untouched, got %+v", other)
	}
	if _, err := h.manager.StartTask(ctx, "R2", "R2-t1", "devA"); !errors.Is(err, release.ErrDeveloperBusy) {
		t.Fatalf("expected developer busy, got %v", err)
	}
	done, err := h.manager.CompleteTask(ctx, "R1", "R1-t1", "devA")
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if done.DeveloperID != "devA" {
		t.Fatalf("stored developer = %q, want devA", done.DeveloperID)
	}
}

func TestHotfixOntoEmptyRelease(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rel, err := h.manager.CreateRelease(ctx, release.Draft{ID: "E", Title: "Empty"})
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if len(rel.Tasks) != 0 || rel.Completed {
		t.Fatalf("unexpected empty release: %+v", rel)
	}

	task, err := h.manager.AddHotfixTask(ctx, "E", release.TaskDraft{Title: "First fix"})
	if err != nil {
		t.Fatalf("AddHotfixTask: %v", err)
	}
	if task.OrderIndex != 1 || task.Status != release.StatusTodo {
		t.Fatalf("expected todo task at order 1, got %+v", task)
	}
	got := h.mustGet(t, "E")
	if len(got.Tasks) != 1 || got.Completed || got.Version != 2 {
		t.Fatalf("unexpected persisted release: %+v", got)
	}
}

func TestPanickingPublisherDoesNotFailTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	inner := &recordingPublisher{}
	mgr := workflow.NewManager(st, testDirectory(), &panickingPublisher{panicOn: "R-t1", inner: inner}, logging.NewNop())
	ctx := context.Background()
	testsupport.MustCreateRelease(t, st, "R", "T1", "T2")

	if _, err := mgr.StartTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if _, err := mgr.CompleteTask(ctx, "R", "R-t1", "devA"); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := mgr.AssignDeveloper(ctx, "R", "R-t1", "devB"); err != nil {
		t.Fatalf("AssignDeveloper: %v", err)
	}

	rel, err := st.Get(ctx, "R")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if task := mustTask(t, rel, "R-t1"); task.Status != release.StatusCompleted || task.DeveloperID != "devB" {
		t.Fatalf("transitions must persist despite publish panics, got %+v", task)
	}

	if _, err := mgr.StartTask(ctx, "R", "R-t2", "devA"); err != nil {
		t.Fatalf("StartTask R-t2: %v", err)
	}
	if kinds := inner.kinds(); len(kinds) != 1 || kinds[0] != notifications.KindTaskAssigned {
		t.Fatalf("expected only the R-t2 event, got %v", kinds)
	}
}
