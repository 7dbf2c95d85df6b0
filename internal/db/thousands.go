package db

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid ISO date")

// Thousands records the value of the meter's thousands register from a date on.
type Thousands struct {
	ISODate string
	Value   int
}

// SetThousands stores the thousands register value for a date.
func (db *DB) SetThousands(isoDate string, value int) error {
	if _, err := time.Parse("2006-01-02", isoDate); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, isoDate)
	}
	if value < 0 {
		return fmt.Errorf("thousands value must be non-negative, got %d", value)
	}
	if _, err := db.Exec(
		"INSERT OR REPLACE INTO watermeter_thousands (iso_date, value) VALUES (?, ?)",
		isoDate, value,
	); err != nil {
		return fmt.Errorf("setting thousands for %s: %w", isoDate, err)
	}
	return nil
}

// ListThousands returns all thousands entries ordered by date.
func (db *DB) ListThousands() ([]Thousands, error) {
	rows, err := db.Query("SELECT iso_date, value FROM watermeter_thousands ORDER BY iso_date")
	if err != nil {
		return nil, fmt.Errorf("querying thousands: %w", err)
	}
	defer rows.Close()

	var out []Thousands
	for rows.Next() {
		var t Thousands
		if err := rows.Scan(&t.ISODate, &t.Value); err != nil {
			return nil, fmt.Errorf("scanning thousands: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ThousandsAt returns the thousands value in effect on isoDate: the latest
// entry dated on or before it. ok is false when there is none.
func (db *DB) ThousandsAt(isoDate string) (value int, ok bool, err error) {
	all, err := db.ListThousands()
	if err != nil {
		return 0, false, err
	}
	value, ok = ThousandsOn(all, isoDate)
	return value, ok, nil
}

// ThousandsOn finds the value in effect on isoDate from entries sorted by date.
func ThousandsOn(entries []Thousands, isoDate string) (int, bool) {
	value, ok := 0, false
	for _, t := range entries {
		if t.ISODate > isoDate {
			break
		}
		value, ok = t.Value, true
	}
	return value, ok
}
