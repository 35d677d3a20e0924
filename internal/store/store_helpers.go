package store

import (
	"database/sql"
	"errors"
	"time"

	"flowops/internal/release"
)

// timeLayout is fixed width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = "release_id, id, title, description, status, developer_id, order_index, started_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(scanner rowScanner) (string, release.Task, error) {
	var (
		releaseID    string
		task         release.Task
		status       string
		description  sql.NullString
		developerID  sql.NullString
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&releaseID,
		&task.ID,
		&task.Title,
		&description,
		&status,
		&developerID,
		&task.OrderIndex,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return "", release.Task{}, err
	}
	task.Status = release.Status(status)
	task.Description = description.String
	task.DeveloperID = developerID.String
	task.StartedAt = parseNullableTime(startedRaw)
	task.CompletedAt = parseNullableTime(completedRaw)
	return releaseID, task, nil
}

func scanRelease(scanner rowScanner) (release.Release, error) {
	var (
		rel        release.Release
		completed  int
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&rel.ID, &rel.Title, &completed, &rel.Version, &createdRaw, &updatedRaw); err != nil {
		return release.Release{}, err
	}
	rel.Completed = completed != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		rel.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rel.UpdatedAt = updated
	}
	return rel, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
