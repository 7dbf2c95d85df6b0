package testutil

import (
	"errors"
	"testing"

	"github.com/meterelf/meterelf-store/internal/db"
)

// RequireNoError fails the test immediately if err is non-nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireErrorIs fails unless err wraps target.
func RequireErrorIs(t *testing.T, err, target error, msg string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: expected %v, got %v", msg, target, err)
	}
}

// RequireEqual fails the test immediately if expected != actual.
func RequireEqual[T comparable](t *testing.T, expected, actual T, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// RequireLen fails if len(s) != n.
func RequireLen[T ~[]E, E any](t *testing.T, s T, n int, msg string) {
	t.Helper()
	if len(s) != n {
		t.Fatalf("%s: expected len=%d, got %d", msg, n, len(s))
	}
}

// RequireReading loads the entry stored for filename and fails unless it
// holds the reading want without an error.
func RequireReading(t *testing.T, database *db.DB, filename string, want float64) *db.Entry {
	t.Helper()
	e, err := database.GetEntry(filename)
	if err != nil {
		t.Fatalf("GetEntry(%s): %v", filename, err)
	}
	if !e.HasReading() {
		t.Fatalf("%s: no reading (error %q)", filename, e.Error)
	}
	if *e.Reading != want {
		t.Fatalf("%s: reading=%v want %v", filename, *e.Reading, want)
	}
	return e
}
