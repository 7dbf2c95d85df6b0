package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is one meter image and what the reader made of it.
type Entry struct {
	MonthDir   string
	DayDir     string
	Filename   string
	TakenAt    *time.Time
	Reading    *float64
	Error      string
	ModifiedAt time.Time
}

// HasReading reports whether the entry carries a usable reading.
func (e *Entry) HasReading() bool {
	return e != nil && e.Reading != nil && e.Error == ""
}

// InsertEntries inserts or replaces entries in a single transaction.
// Rows are keyed by filename.
func (db *DB) InsertEntries(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO watermeter_image
			(month_dir, day_dir, filename, taken_at, reading, error, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if e == nil || e.Filename == "" {
			return fmt.Errorf("entry filename is required")
		}
		var takenAt sql.NullInt64
		if e.TakenAt != nil {
			takenAt = sql.NullInt64{Int64: e.TakenAt.UnixNano(), Valid: true}
		}
		var reading sql.NullFloat64
		if e.Reading != nil {
			reading = sql.NullFloat64{Float64: *e.Reading, Valid: true}
		}
		modified := e.ModifiedAt
		if modified.IsZero() {
			modified = time.Now()
		}
		if _, err := stmt.Exec(e.MonthDir, e.DayDir, e.Filename, takenAt, reading, e.Error,
			modified.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting %s: %w", e.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing entries: %w", err)
	}
	return nil
}

// CountExistingFilenames returns how many of filenames are already stored.
func (db *DB) CountExistingFilenames(filenames []string) (int, error) {
	if len(filenames) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filenames)), ",")
	args := make([]any, len(filenames))
	for i, fn := range filenames {
		args[i] = fn
	}

	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM watermeter_image WHERE filename IN ("+placeholders+")",
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting existing filenames: %w", err)
	}
	return count, nil
}

// HasFilename reports whether an entry for filename exists.
func (db *DB) HasFilename(filename string) (bool, error) {
	n, err := db.CountExistingFilenames([]string{filename})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsDoneWithDay reports whether the day already has an image from its last
// hour stored, meaning no more images are expected for it.
func (db *DB) IsDoneWithDay(monthDir, dayDir string) (bool, error) {
	prefix := strings.ReplaceAll(monthDir, "-", "") + dayDir + "23"
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM watermeter_image WHERE filename LIKE ? ESCAPE '\\'",
		escapeLike(prefix)+"%",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking day %s/%s: %w", monthDir, dayDir, err)
	}
	return count > 0, nil
}

// GetEntry returns the entry stored for filename, or sql.ErrNoRows wrapped.
func (db *DB) GetEntry(filename string) (*Entry, error) {
	row := db.QueryRow(`
		SELECT month_dir, day_dir, filename, taken_at, reading, error, modified_at
		FROM watermeter_image WHERE filename = ?
	`, filename)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("getting entry %s: %w", filename, err)
	}
	return e, nil
}

// ListEntries returns entries taken at or after since, oldest first.
// Entries whose time is unknown are not returned.
func (db *DB) ListEntries(since time.Time) ([]*Entry, error) {
	rows, err := db.Query(`
		SELECT month_dir, day_dir, filename, taken_at, reading, error, modified_at
		FROM watermeter_image
		WHERE taken_at IS NOT NULL AND taken_at >= ?
		ORDER BY taken_at, filename
	`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e        Entry
		takenAt  sql.NullInt64
		reading  sql.NullFloat64
		modified string
	)
	if err := s.Scan(&e.MonthDir, &e.DayDir, &e.Filename, &takenAt, &reading, &e.Error, &modified); err != nil {
		return nil, err
	}
	if takenAt.Valid {
		t := time.Unix(0, takenAt.Int64)
		e.TakenAt = &t
	}
	if reading.Valid {
		r := reading.Float64
		e.Reading = &r
	}
	if modified != "" {
		t, err := time.Parse(time.RFC3339Nano, modified)
		if err != nil {
			return nil, fmt.Errorf("parsing modified_at of %s: %w", e.Filename, err)
		}
		e.ModifiedAt = t
	}
	return &e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
