package release

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var allStatuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

var titleCaser = cases.Title(language.English)

// AllStatuses returns the statuses in lifecycle order.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus converts a string into a known Status. Hyphens, spaces, and case
// are tolerated so "In Progress" and "in-progress" both parse.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	for _, status := range allStatuses {
		if string(status) == normalized {
			return status, true
		}
	}
	return "", false
}

// Label returns the display form, e.g. "In Progress".
func (s Status) Label() string {
	return titleCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// Task is a unit of work owned by exactly one Release.
type Task struct {
	ID          string
	Title       string
	Description string
	Status      Status
	DeveloperID string
	OrderIndex  int
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// HasDeveloper reports whether a developer reference is set.
func (t Task) HasDeveloper() bool {
	return strings.TrimSpace(t.DeveloperID) != ""
}

// Release is the aggregate root. Version increases by one on every successful save.
type Release struct {
	ID        string
	Title     string
	Completed bool
	Tasks     []Task
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StaleTask pairs a stale task with its owning release.
type StaleTask struct {
	ReleaseID    string
	ReleaseTitle string
	Task         Task
}

// Stats summarizes task counts across the store.
type Stats struct {
	Releases          int
	CompletedReleases int
	Tasks             map[Status]int
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r Release) Clone() Release {
	out := r
	out.Tasks = make([]Task, len(r.Tasks))
	for i, task := range r.Tasks {
		out.Tasks[i] = task.clone()
	}
	return out
}

func (t Task) clone() Task {
	out := t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// FindTask returns a pointer into r.Tasks for in-place mutation.
func (r *Release) FindTask(id string) (*Task, bool) {
	for i := range r.Tasks {
		if r.Tasks[i].ID == id {
			return &r.Tasks[i], true
		}
	}
	return nil, false
}

// SortedTasks returns a copy of the tasks ordered by OrderIndex.
func (r Release) SortedTasks() []Task {
	tasks := slices.Clone(r.Tasks)
	slices.SortFunc(tasks, func(a, b Task) int { return a.OrderIndex - b.OrderIndex })
	return tasks
}

// MaxOrderIndex returns the highest order index, or 0 for an empty release.
func (r Release) MaxOrderIndex() int {
	highest := 0
	for _, task := range r.Tasks {
		highest = max(highest, task.OrderIndex)
	}
	return highest
}

// Blocker returns the nearest earlier-ordered task that is not Completed.
func (r Release) Blocker(task Task) (Task, bool) {
	var (
		blocker Task
		found   bool
	)
	for _, other := range r.Tasks {
		if other.OrderIndex >= task.OrderIndex || other.Status == StatusCompleted {
			continue
		}
		if !found || other.OrderIndex > blocker.OrderIndex {
			blocker, found = other, true
		}
	}
	return blocker, found
}

// AllCompleted reports whether every task is Completed. An empty release is
// never considered complete.
func (r Release) AllCompleted() bool {
	if len(r.Tasks) == 0 {
		return false
	}
	for _, task := range r.Tasks {
		if task.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// RecomputeCompleted derives Completed from task statuses.
func (r *Release) RecomputeCompleted() {
	r.Completed = r.AllCompleted()
}

// CheckOrder verifies that order indices form a dense permutation of 1..N and
// that task ids are unique.
func (r Release) CheckOrder() error {
	n := len(r.Tasks)
	seenOrder := make([]bool, n+1)
	seenID := make(map[string]struct{}, n)
	for _, task := range r.Tasks {
		if task.OrderIndex < 1 || task.OrderIndex > n {
			return Wrap(ErrValidation, "check order", fmt.Sprintf("task %q has order index %d outside 1..%d", task.ID, task.OrderIndex, n), nil)
		}
		if seenOrder[task.OrderIndex] {
			return Wrap(ErrValidation, "check order", fmt.Sprintf("order index %d used twice", task.OrderIndex), nil)
		}
		seenOrder[task.OrderIndex] = true
		if _, dup := seenID[task.ID]; dup {
			return Wrap(ErrValidation, "check order", fmt.Sprintf("task id %q used twice", task.ID), nil)
		}
		seenID[task.ID] = struct{}{}
	}
	return nil
}

// CountByStatus tallies tasks per status.
func (r Release) CountByStatus() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, task := range r.Tasks {
		counts[task.Status]++
	}
	return counts
}
