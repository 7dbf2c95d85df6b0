package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a collection run does not exist.
var ErrRunNotFound = errors.New("collection run not found")

// Run modes.
const (
	RunModeNew    = "new"
	RunModeReread = "reread"
	RunModeImport = "import"
	RunModeWatch  = "watch"
)

// Run is one collection run over the image tree.
type Run struct {
	ID           string
	Mode         string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ImagesRead   int
	ImagesFailed int
	Error        string
}

// StartRun records the start of a collection run and returns it.
func (db *DB) StartRun(mode string) (*Run, error) {
	r := &Run{
		ID:        uuid.New().String(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
	if _, err := db.Exec(
		"INSERT INTO collect_runs (id, mode, started_at) VALUES (?, ?, ?)",
		r.ID, r.Mode, r.StartedAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	return r, nil
}

// FinishRun stores the final counts of a run. runErr may be nil.
func (db *DB) FinishRun(r *Run, runErr error) error {
	now := time.Now().UTC()
	r.FinishedAt = &now
	if runErr != nil {
		r.Error = runErr.Error()
	}
	result, err := db.Exec(`
		UPDATE collect_runs
		SET finished_at = ?, images_read = ?, images_failed = ?, error = ?
		WHERE id = ?
	`, now.Format(time.RFC3339Nano), r.ImagesRead, r.ImagesFailed, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, mode, started_at, finished_at, images_read, images_failed, error
		FROM collect_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished, &r.ImagesRead, &r.ImagesFailed, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(time.RFC3339Nano, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parsing finished_at: %w", err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
