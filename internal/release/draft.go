package release

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Draft is the caller-supplied shape of a new release.
type Draft struct {
	ID    string
	Title string
	Tasks []TaskDraft
}

// TaskDraft is the caller-supplied shape of a task. ID and Status are optional.
type TaskDraft struct {
	ID          string
	Title       string
	Description string
	Status      Status
	DeveloperID string
}

// NormalizeTitle applies NFC normalization and collapses runs of whitespace.
func NormalizeTitle(value string) string {
	return strings.Join(strings.Fields(norm.NFC.String(value)), " ")
}

// NormalizeDeveloperID returns the canonical form of a developer reference.
func NormalizeDeveloperID(value string) string {
	return strings.TrimSpace(value)
}

func (d TaskDraft) normalized() TaskDraft {
	d.ID = strings.TrimSpace(d.ID)
	d.Title = NormalizeTitle(d.Title)
	d.Description = strings.TrimSpace(norm.NFC.String(d.Description))
	d.DeveloperID = NormalizeDeveloperID(d.DeveloperID)
	return d
}

// Build turns a draft into a new Release: ids are assigned where absent, order
// indices run 1..N in input order, statuses default to Todo, and Completed is
// false. newID supplies identifiers for the release and any id-less task.
func (d Draft) Build(now time.Time, newID func() string) (Release, error) {
	title := NormalizeTitle(d.Title)
	if title == "" {
		return Release{}, Wrap(ErrValidation, "create release", "title is required", nil)
	}

	rel := Release{
		ID:        strings.TrimSpace(d.ID),
		Title:     title,
		Completed: false,
		Tasks:     make([]Task, 0, len(d.Tasks)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rel.ID == "" {
		rel.ID = newID()
	}

	seen := make(map[string]struct{}, len(d.Tasks))
	for i, raw := range d.Tasks {
		td := raw.normalized()
		if td.Title == "" {
			return Release{}, Wrap(ErrValidation, "create release", fmt.Sprintf("task %d: title is required", i+1), nil)
		}
		switch td.Status {
		case "":
			td.Status = StatusTodo
		case StatusTodo:
		default:
			return Release{}, Wrap(ErrValidation, "create release", fmt.Sprintf("task %d: new tasks must start in %s, got %s", i+1, StatusTodo, td.Status), nil)
		}
		if td.ID == "" {
			td.ID = newID()
		}
		if _, dup := seen[td.ID]; dup {
			return Release{}, Wrap(ErrValidation, "create release", fmt.Sprintf("task id %q used twice", td.ID), nil)
		}
		seen[td.ID] = struct{}{}

		rel.Tasks = append(rel.Tasks, Task{
			ID:          td.ID,
			Title:       td.Title,
			Description: td.Description,
			Status:      td.Status,
			DeveloperID: td.DeveloperID,
			OrderIndex:  i + 1,
		})
	}
	return rel, nil
}

// AppendHotfix reopens r if it was completed and appends a Todo task at
// max(order)+1. Any status on the draft is ignored.
func (r *Release) AppendHotfix(d TaskDraft, now time.Time, newID func() string) (Task, error) {
	td := d.normalized()
	if td.Title == "" {
		return Task{}, Wrap(ErrValidation, "add hotfix task", "title is required", nil)
	}
	if td.ID == "" {
		td.ID = newID()
	}
	if _, exists := r.FindTask(td.ID); exists {
		return Task{}, Wrap(ErrValidation, "add hotfix task", fmt.Sprintf("task id %q already exists in release", td.ID), nil)
	}

	task := Task{
		ID:          td.ID,
		Title:       td.Title,
		Description: td.Description,
		Status:      StatusTodo,
		DeveloperID: td.DeveloperID,
		OrderIndex:  r.MaxOrderIndex() + 1,
	}
	r.Completed = false
	r.Tasks = append(r.Tasks, task)
	r.UpdatedAt = now
	return task, nil
}
