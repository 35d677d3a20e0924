package store

import (
	"context"
	"fmt"
	"time"

	"flowops/internal/release"
)

// ExistsActiveTask reports whether developerID holds any InProgress task in
// any release.
func (s *Store) ExistsActiveTask(ctx context.Context, developerID string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM release_tasks WHERE developer_id = ? AND status = ?",
			developerID, string(release.StatusInProgress),
		).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("exists active task: %w", err)
	}
	return count > 0, nil
}

// FindStale returns tasks with the given status whose started_at is at or
// before the cutoff, oldest first.
func (s *Store) FindStale(ctx context.Context, status release.Status, before time.Time) ([]release.StaleTask, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.release_id, t.id, t.title, t.description, t.status, t.developer_id, t.order_index,
		       t.started_at, t.completed_at, r.title
		FROM release_tasks t
		JOIN releases r ON r.id = t.release_id
		WHERE t.status = ? AND t.started_at IS NOT NULL AND t.started_at <= ?
		ORDER BY t.started_at, t.release_id, t.order_index`,
		string(status), formatTime(before),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale tasks: %w", err)
	}
	defer rows.Close()

	var stale []release.StaleTask
	for rows.Next() {
		var (
			entry        release.StaleTask
			releaseTitle string
		)
		releaseID, task, err := scanTask(staleRow{rows: rows, releaseTitle: &releaseTitle})
		if err != nil {
			return nil, fmt.Errorf("scan stale task: %w", err)
		}
		entry.ReleaseID = releaseID
		entry.ReleaseTitle = releaseTitle
		entry.Task = task
		stale = append(stale, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale tasks: %w", err)
	}
	return stale, nil
}

// staleRow appends the joined release title to the task scan targets.
type staleRow struct {
	rows         rowScanner
	releaseTitle *string
}

func (r staleRow) Scan(dest ...any) error {
	return r.rows.Scan(append(dest, r.releaseTitle)...)
}

// Stats returns release and per-status task counts.
func (s *Store) Stats(ctx context.Context) (release.Stats, error) {
	ctx = ensureContext(ctx)
	stats := release.Stats{Tasks: make(map[release.Status]int)}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(completed), 0) FROM releases",
	).Scan(&stats.Releases, &stats.CompletedReleases); err != nil {
		return stats, fmt.Errorf("count releases: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM release_tasks GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan task count: %w", err)
		}
		stats.Tasks[release.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate task counts: %w", err)
	}
	return stats, nil
}
