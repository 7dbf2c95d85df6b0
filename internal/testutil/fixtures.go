package testutil

import (
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/meterelf/meterelf-store/internal/db"
	"github.com/meterelf/meterelf-store/internal/fnparse"
)

// EntryOption customizes a test entry.
type EntryOption func(*db.Entry)

// Helsinki is the location the fixture filenames are interpreted in.
var Helsinki = mustLoadLocation("Europe/Helsinki")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Reading builds an entry for filename with a reading. The directories and
// time are derived from the filename when it follows the camera format.
func Reading(filename string, value float64, opts ...EntryOption) *db.Entry {
	e := newEntry(filename)
	e.Reading = &value
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Failed builds an entry for filename whose reading failed with errText.
func Failed(filename, errText string, opts ...EntryOption) *db.Entry {
	e := newEntry(filename)
	e.Error = errText
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newEntry(filename string) *db.Entry {
	e := &db.Entry{Filename: filename}
	if fd, err := fnparse.Parse(filename, Helsinki); err == nil {
		t := fd.Time
		e.TakenAt = &t
		e.MonthDir = fd.MonthDir()
		e.DayDir = fd.DayDir()
	}
	return e
}

// WithTakenAt overrides the entry time.
func WithTakenAt(t time.Time) EntryOption {
	return func(e *db.Entry) { e.TakenAt = &t }
}

// WithoutTime clears the entry time.
func WithoutTime() EntryOption {
	return func(e *db.Entry) { e.TakenAt = nil }
}

// WithDirs overrides the month and day directories.
func WithDirs(monthDir, dayDir string) EntryOption {
	return func(e *db.Entry) {
		e.MonthDir = monthDir
		e.DayDir = dayDir
	}
}

// MakeEntries inserts entries into the DB and returns them.
func MakeEntries(t *testing.T, database *db.DB, entries ...*db.Entry) []*db.Entry {
	t.Helper()
	RequireNoError(t, database.InsertEntries(entries), "insert entries")
	return entries
}

// MakeThousands inserts thousands register values keyed by ISO date.
func MakeThousands(t *testing.T, database *db.DB, values map[string]int) {
	t.Helper()
	for date, v := range values {
		RequireNoError(t, database.SetThousands(date, v), "set thousands "+date)
	}
}

// ImageName formats a camera filename for a local time and sequence number.
func ImageName(t time.Time, seq int) string {
	return t.Format("20060102150405") + "-" + twoDigits(seq) + ".jpg"
}

// ImagePath returns the tree path <root>/<YYYY-MM>/<DD>/<filename>.
func ImagePath(root string, t time.Time, seq int) string {
	return filepath.Join(root, t.Format("2006-01"), t.Format("02"), ImageName(t, seq))
}

func twoDigits(n int) string {
	if n < 0 {
		n = 0
	}
	n %= 100
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}
