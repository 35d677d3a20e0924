package workflow

import (
	"context"
	"fmt"

	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
)

// StartTask moves a Todo task to InProgress for developerID.
//
// The developer lock is held across the busy check and the save so two starts
// by the same developer on different releases cannot both pass the check.
func (m *Manager) StartTask(ctx context.Context, releaseID, taskID, developerID string) (release.Task, error) {
	const op = "start task"
	dev, err := m.resolveDeveloper(ctx, op, developerID)
	if err != nil {
		return release.Task{}, err
	}
	unlockDev := m.lockDeveloper(developerID)
	defer unlockDev()
	unlockRel := m.lockRelease(releaseID)
	defer unlockRel()

	busy, err := m.store.ExistsActiveTask(ctx, developerID)
	if err != nil {
		return release.Task{}, fmt.Errorf("%s: check active task: %w", op, err)
	}
	if busy {
		return release.Task{}, release.Wrap(release.ErrDeveloperBusy, op, fmt.Sprintf("developer %q already has a task in progress", developerID), nil)
	}

	rel, task, err := m.loadTask(ctx, op, releaseID, taskID)
	if err != nil {
		return release.Task{}, err
	}
	if task.Status != release.StatusTodo {
		return release.Task{}, release.Wrap(release.ErrInvalidState, op, fmt.Sprintf("task %q is %s, expected %s", task.ID, task.Status, release.StatusTodo), nil)
	}
	if blocker, blocked := rel.Blocker(*task); blocked {
		return release.Task{}, &release.SequenceError{ReleaseID: rel.ID, TaskID: task.ID, Blocking: blocker}
	}

	now := m.now()
	task.Status = release.StatusInProgress
	task.DeveloperID = developerID
	task.StartedAt = timePtr(now)
	rel.UpdatedAt = now
	started := *task
	if err := m.store.Save(ctx, &rel); err != nil {
		return release.Task{}, fmt.Errorf("%s: %w", op, err)
	}

	ctx = taskContext(ctx, rel.ID, started.ID, developerID)
	m.opLogger(ctx).Info("task started", logging.String(logging.FieldEventType, "task_started"))
	m.publish(ctx, notifications.TaskAssigned{
		Details: eventDetails(dev, rel.ID, started, MessageTaskStarted),
		Source:  notifications.AssignedByStart,
	})
	return started, nil
}

// CompleteTask moves an InProgress task to Completed and recomputes the
// release completion flag.
func (m *Manager) CompleteTask(ctx context.Context, releaseID, taskID, developerID string) (release.Task, error) {
	const op = "complete task"
	unlockRel := m.lockRelease(releaseID)
	defer unlockRel()

	dev, err := m.resolveDeveloper(ctx, op, developerID)
	if err != nil {
		return release.Task{}, err
	}
	rel, task, err := m.loadTask(ctx, op, releaseID, taskID)
	if err != nil {
		return release.Task{}, err
	}
	if task.Status != release.StatusInProgress {
		return release.Task{}, release.Wrap(release.ErrInvalidState, op, fmt.Sprintf("task %q is %s, expected %s", task.ID, task.Status, release.StatusInProgress), nil)
	}
	if task.HasDeveloper() && task.DeveloperID != developerID {
		return release.Task{}, release.Wrap(release.ErrWrongDeveloper, op, fmt.Sprintf("task %q is assigned to %q", task.ID, task.DeveloperID), nil)
	}

	now := m.now()
	task.Status = release.StatusCompleted
	task.CompletedAt = timePtr(now)
	if !task.HasDeveloper() {
		task.DeveloperID = developerID
	}
	completed := *task
	rel.RecomputeCompleted()
	rel.UpdatedAt = now
	if err := m.store.Save(ctx, &rel); err != nil {
		return release.Task{}, fmt.Errorf("%s: %w", op, err)
	}

	ctx = taskContext(ctx, rel.ID, completed.ID, developerID)
	m.opLogger(ctx).Info(
		"task completed",
		logging.String(logging.FieldEventType, "task_completed"),
		logging.Bool("release_completed", rel.Completed),
	)
	m.publish(ctx, notifications.TaskCompleted{
		Details:          eventDetails(dev, rel.ID, completed, MessageTaskCompleted),
		CompletedAt:      now,
		ReleaseCompleted: rel.Completed,
	})
	return completed, nil
}

// AssignDeveloper sets the developer on a task without touching its status.
// It does not consult the one-active-task rule that StartTask enforces.
func (m *Manager) AssignDeveloper(ctx context.Context, releaseID, taskID, developerID string) (release.Task, error) {
	const op = "assign developer"
	unlockRel := m.lockRelease(releaseID)
	defer unlockRel()

	dev, err := m.resolveDeveloper(ctx, op, developerID)
	if err != nil {
		return release.Task{}, err
	}
	rel, task, err := m.loadTask(ctx, op, releaseID, taskID)
	if err != nil {
		return release.Task{}, err
	}
	previous := task.DeveloperID
	task.DeveloperID = developerID
	rel.UpdatedAt = m.now()
	assigned := *task
	if err := m.store.Save(ctx, &rel); err != nil {
		return release.Task{}, fmt.Errorf("%s: %w", op, err)
	}

	ctx = taskContext(ctx, rel.ID, assigned.ID, developerID)
	m.opLogger(ctx).Info(
		"developer assigned",
		logging.String(logging.FieldEventType, "developer_assigned"),
		logging.String("previous_developer_id", previous),
		logging.String("status", string(assigned.Status)),
	)
	m.publish(ctx, notifications.TaskAssigned{
		Details: eventDetails(dev, rel.ID, assigned, MessageTaskAssigned),
		Source:  notifications.AssignedByDirect,
	})
	return assigned, nil
}

// resolveDeveloper only accepts ids already in canonical form so the lock key,
// the busy query, and the stored reference all agree with the directory.
func (m *Manager) resolveDeveloper(ctx context.Context, op, developerID string) (directory.Developer, error) {
	if developerID == "" {
		return directory.Developer{}, release.Wrap(release.ErrValidation, op, "developer id is required", nil)
	}
	if canonical := release.NormalizeDeveloperID(developerID); canonical != developerID {
		return directory.Developer{}, release.Wrap(release.ErrValidation, op, fmt.Sprintf("developer id %q has surrounding whitespace", developerID), nil)
	}
	dev, err := m.directory.Resolve(ctx, developerID)
	if err != nil {
		return directory.Developer{}, release.Wrap(nil, op, "resolve developer", err)
	}
	return dev, nil
}

func taskContext(ctx context.Context, releaseID, taskID, developerID string) context.Context {
	ctx = logging.WithReleaseID(ctx, releaseID)
	ctx = logging.WithTaskID(ctx, taskID)
	return logging.WithDeveloperID(ctx, developerID)
}

func eventDetails(dev directory.Developer, releaseID string, task release.Task, message string) notifications.Details {
	return notifications.Details{
		DeveloperID: dev.ID,
		Email:       dev.Email,
		ReleaseID:   releaseID,
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		Message:     message,
	}
}
