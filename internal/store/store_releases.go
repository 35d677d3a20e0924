package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"flowops/internal/release"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts a new release with its tasks. rel.Version is set to 1.
func (s *Store) Create(ctx context.Context, rel *release.Release) error {
	if rel == nil {
		return errors.New("create release: nil release")
	}
	if err := rel.CheckOrder(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM releases WHERE id = ?", rel.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check release id: %w", err)
		}
		if exists > 0 {
			return release.Wrap(release.ErrValidation, "create release", fmt.Sprintf("release %q already exists", rel.ID), nil)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO releases (id, title, completed, version, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
			rel.ID, rel.Title, boolToInt(rel.Completed), formatTime(rel.CreatedAt), formatTime(rel.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert release: %w", err)
		}
		return insertTasks(ctx, tx, rel.ID, rel.Tasks)
	})
	if err != nil {
		return err
	}
	rel.Version = 1
	return nil
}

// Get loads a release and its tasks ordered by order index.
func (s *Store) Get(ctx context.Context, id string) (release.Release, error) {
	return s.load(ensureContext(ctx), s.db, id)
}

func (s *Store) load(ctx context.Context, q querier, id string) (release.Release, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, title, completed, version, created_at, updated_at FROM releases WHERE id = ?", id)
	rel, err := scanRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return release.Release{}, release.Wrap(release.ErrNotFound, "get release", fmt.Sprintf("release %q", id), nil)
	}
	if err != nil {
		return release.Release{}, fmt.Errorf("get release: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM release_tasks WHERE release_id = ? ORDER BY order_index", id)
	if err != nil {
		return release.Release{}, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		_, task, err := scanTask(rows)
		if err != nil {
			return release.Release{}, fmt.Errorf("scan task: %w", err)
		}
		rel.Tasks = append(rel.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return release.Release{}, fmt.Errorf("iterate tasks: %w", err)
	}
	return rel, nil
}

// Save replaces the whole aggregate. The write only applies when the stored
// version still equals rel.Version; otherwise ErrConflict is returned and
// nothing changes. On success rel.Version is incremented.
func (s *Store) Save(ctx context.Context, rel *release.Release) error {
	if rel == nil {
		return errors.New("save release: nil release")
	}
	if err := rel.CheckOrder(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE releases SET title = ?, completed = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND version = ?`,
			rel.Title, boolToInt(rel.Completed), formatTime(rel.UpdatedAt), rel.ID, rel.Version,
		)
		if err != nil {
			return fmt.Errorf("update release: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update release rows: %w", err)
		}
		if affected == 0 {
			var current int64
			err := tx.QueryRowContext(ctx, "SELECT version FROM releases WHERE id = ?", rel.ID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return release.Wrap(release.ErrNotFound, "save release", fmt.Sprintf("release %q", rel.ID), nil)
			}
			if err != nil {
				return fmt.Errorf("read release version: %w", err)
			}
			return release.Wrap(release.ErrConflict, "save release",
				fmt.Sprintf("release %q is at version %d, caller had %d", rel.ID, current, rel.Version), nil)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM release_tasks WHERE release_id = ?", rel.ID); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		return insertTasks(ctx, tx, rel.ID, rel.Tasks)
	})
	if err != nil {
		return err
	}
	rel.Version++
	return nil
}

func insertTasks(ctx context.Context, tx *sql.Tx, releaseID string, tasks []release.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO release_tasks ("+taskColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare task insert: %w", err)
	}
	defer stmt.Close()
	for _, task := range tasks {
		if _, err := stmt.ExecContext(ctx,
			releaseID,
			task.ID,
			task.Title,
			nullableString(task.Description),
			string(task.Status),
			nullableString(task.DeveloperID),
			task.OrderIndex,
			nullableTime(task.StartedAt),
			nullableTime(task.CompletedAt),
		); err != nil {
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}
	return nil
}

// List returns every release, newest first, with tasks attached.
func (s *Store) List(ctx context.Context) ([]release.Release, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, completed, version, created_at, updated_at FROM releases ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	var (
		releases []release.Release
		index    = map[string]int{}
	)
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan release: %w", err)
		}
		index[rel.ID] = len(releases)
		releases = append(releases, rel)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate releases: %w", err)
	}
	rows.Close()

	taskRows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM release_tasks ORDER BY release_id, order_index")
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer taskRows.Close()
	for taskRows.Next() {
		releaseID, task, err := scanTask(taskRows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if i, ok := index[releaseID]; ok {
			releases[i].Tasks = append(releases[i].Tasks, task)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return releases, nil
}
