package workflow

import (
	"context"
	"fmt"
	"strings"

	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
)

// CreateRelease builds a release from draft and persists it.
func (m *Manager) CreateRelease(ctx context.Context, draft release.Draft) (release.Release, error) {
	rel, err := draft.Build(m.now(), m.newID)
	if err != nil {
		return release.Release{}, err
	}
	if err := m.store.Create(ctx, &rel); err != nil {
		return release.Release{}, fmt.Errorf("create release: %w", err)
	}

	m.opLogger(logging.WithReleaseID(ctx, rel.ID)).Info(
		"release created",
		logging.String(logging.FieldEventType, "release_created"),
		logging.String("title", rel.Title),
		logging.Int("task_count", len(rel.Tasks)),
	)
	return rel, nil
}

// GetRelease loads a release by id.
func (m *Manager) GetRelease(ctx context.Context, id string) (release.Release, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return release.Release{}, release.Wrap(release.ErrValidation, "get release", "release id is required", nil)
	}
	return m.store.Get(ctx, id)
}

// ListReleases returns every release, newest first.
func (m *Manager) ListReleases(ctx context.Context) ([]release.Release, error) {
	return m.store.List(ctx)
}

// AddHotfixTask appends a Todo task to the release, reopening it if it was
// completed. HotfixTaskAdded is published only when the draft names a developer.
func (m *Manager) AddHotfixTask(ctx context.Context, releaseID string, draft release.TaskDraft) (release.Task, error) {
	unlock := m.lockRelease(releaseID)
	defer unlock()

	rel, err := m.store.Get(ctx, releaseID)
	if err != nil {
		return release.Task{}, err
	}
	wasCompleted := rel.Completed
	task, err := rel.AppendHotfix(draft, m.now(), m.newID)
	if err != nil {
		return release.Task{}, err
	}
	if err := m.store.Save(ctx, &rel); err != nil {
		return release.Task{}, fmt.Errorf("add hotfix task: %w", err)
	}

	ctx = logging.WithTaskID(logging.WithReleaseID(ctx, rel.ID), task.ID)
	logger := m.opLogger(ctx)
	logger.Info(
		"hotfix task added",
		logging.String(logging.FieldEventType, "hotfix_added"),
		logging.Int("order_index", task.OrderIndex),
		logging.Bool("reopened", wasCompleted),
	)

	if !task.HasDeveloper() {
		return task, nil
	}
	email := ""
	if dev, err := m.directory.Resolve(ctx, task.DeveloperID); err != nil {
		logging.WarnWithContext(logger, "hotfix developer lookup failed", "developer_lookup_failed",
			logging.String(logging.FieldDeveloperID, task.DeveloperID),
			logging.String(logging.FieldErrorHint, "notification sent without an email address"),
			logging.Error(err),
		)
	} else {
		email = dev.Email
	}
	m.publish(ctx, notifications.HotfixTaskAdded{
		Details: notifications.Details{
			DeveloperID: task.DeveloperID,
			Email:       email,
			ReleaseID:   rel.ID,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			Message:     MessageHotfixAdded,
		},
		OrderIndex: task.OrderIndex,
		Reopened:   wasCompleted,
	})
	return task, nil
}
