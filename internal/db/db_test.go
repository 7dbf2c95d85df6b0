package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenAndMigrate(filepath.Join(t.TempDir(), "values.db"))
	if err != nil {
		t.Fatalf("OpenAndMigrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func ptr[T any](v T) *T { return &v }

func TestOpenWithOptions_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.db")
	_, err := OpenWithOptions(path, OpenOptions{CreateIfNotExists: false})
	if !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("expected ErrDatabaseNotFound, got %v", err)
	}
	if _, err := OpenWithOptions("", OpenOptions{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenAndMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "values.db")
	for i := 0; i < 2; i++ {
		database, err := OpenAndMigrate(path)
		if err != nil {
			t.Fatalf("OpenAndMigrate #%d: %v", i, err)
		}
		var version int
		if err := database.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
			t.Fatalf("schema version: %v", err)
		}
		if version != SchemaVersion {
			t.Fatalf("version=%d want %d", version, SchemaVersion)
		}
		database.Close()
	}
}

func TestInsertEntries_ReplaceAndCount(t *testing.T) {
	database := openTestDB(t)
	taken := time.Date(2018, 10, 5, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{MonthDir: "2018-10", DayDir: "05", Filename: "20181005120000-00.jpg", TakenAt: &taken, Reading: ptr(253.623)},
		{MonthDir: "2018-10", DayDir: "05", Filename: "20181005120001-00.jpg", Error: "UNKNOWN Dials not found"},
	}
	if err := database.InsertEntries(entries); err != nil {
		t.Fatalf("InsertEntries: %v", err)
	}

	n, err := database.CountExistingFilenames([]string{"20181005120000-00.jpg", "20181005120001-00.jpg", "missing.jpg"})
	if err != nil {
		t.Fatalf("CountExistingFilenames: %v", err)
	}
	if n != 2 {
		t.Fatalf("count=%d want 2", n)
	}

	// Replacing keeps one row per filename.
	entries[1].Error = ""
	entries[1].Reading = ptr(253.700)
	if err := database.InsertEntries(entries[1:]); err != nil {
		t.Fatalf("InsertEntries replace: %v", err)
	}
	got, err := database.GetEntry("20181005120001-00.jpg")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !got.HasReading() || *got.Reading != 253.7 {
		t.Fatalf("unexpected replaced entry: %+v", got)
	}

	var rows int
	if err := database.QueryRow("SELECT COUNT(*) FROM watermeter_image").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 2 {
		t.Fatalf("rows=%d want 2", rows)
	}

	var modified string
	if err := database.QueryRow("SELECT modified_at FROM watermeter_image WHERE filename = ?", "20181005120001-00.jpg").Scan(&modified); err != nil {
		t.Fatalf("modified_at: %v", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, modified); err != nil || !ts.Equal(got.ModifiedAt) {
		t.Fatalf("modified_at=%q parsed %v, entry has %v", modified, err, got.ModifiedAt)
	}

	ok, err := database.HasFilename("missing.jpg")
	if err != nil || ok {
		t.Fatalf("HasFilename(missing)=%v,%v", ok, err)
	}
	if n, _ := database.CountExistingFilenames(nil); n != 0 {
		t.Fatalf("CountExistingFilenames(nil)=%d", n)
	}
}

func TestIsDoneWithDay(t *testing.T) {
	database := openTestDB(t)

	done, err := database.IsDoneWithDay("2018-10", "05")
	if err != nil {
		t.Fatalf("IsDoneWithDay: %v", err)
	}
	if done {
		t.Fatalf("empty db should not be done")
	}

	if err := database.InsertEntries([]*Entry{
		{MonthDir: "2018-10", DayDir: "05", Filename: "20181005225959-00.jpg", Reading: ptr(1.0)},
	}); err != nil {
		t.Fatalf("InsertEntries: %v", err)
	}
	if done, _ := database.IsDoneWithDay("2018-10", "05"); done {
		t.Fatalf("hour 22 must not mark the day done")
	}

	if err := database.InsertEntries([]*Entry{
		{MonthDir: "2018-10", DayDir: "05", Filename: "20181005230000-00.jpg", Reading: ptr(1.0)},
	}); err != nil {
		t.Fatalf("InsertEntries: %v", err)
	}
	if done, _ := database.IsDoneWithDay("2018-10", "05"); !done {
		t.Fatalf("hour 23 image should mark the day done")
	}
	if done, _ := database.IsDoneWithDay("2018-10", "06"); done {
		t.Fatalf("other day must not be done")
	}
}

func TestListEntries_OrderAndSince(t *testing.T) {
	database := openTestDB(t)
	base := time.Date(2018, 10, 5, 0, 0, 0, 0, time.UTC)
	t1, t2, t3 := base.Add(2*time.Minute), base.Add(time.Minute), base.Add(-time.Hour)

	if err := database.InsertEntries([]*Entry{
		{MonthDir: "2018-10", DayDir: "05", Filename: "b.jpg", TakenAt: &t1, Reading: ptr(2.0)},
		{MonthDir: "2018-10", DayDir: "05", Filename: "a.jpg", TakenAt: &t2, Reading: ptr(1.0)},
		{MonthDir: "2018-10", DayDir: "04", Filename: "old.jpg", TakenAt: &t3, Reading: ptr(0.5)},
		{MonthDir: "2018-10", DayDir: "05", Filename: "notime.jpg", Reading: ptr(0.5)},
	}); err != nil {
		t.Fatalf("InsertEntries: %v", err)
	}

	got, err := database.ListEntries(base)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].Filename != "a.jpg" || got[1].Filename != "b.jpg" {
		t.Fatalf("unexpected order: %s, %s", got[0].Filename, got[1].Filename)
	}
	if !got[0].TakenAt.Equal(t2) {
		t.Fatalf("taken_at=%v want %v", got[0].TakenAt, t2)
	}
}

func TestThousands(t *testing.T) {
	database := openTestDB(t)

	if err := database.SetThousands("2018-13-01", 1); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
	if err := database.SetThousands("2018-10-01", -1); err == nil {
		t.Fatalf("expected error for negative value")
	}

	for _, th := range []Thousands{{"2018-10-01", 1}, {"2018-11-15", 2}} {
		if err := database.SetThousands(th.ISODate, th.Value); err != nil {
			t.Fatalf("SetThousands: %v", err)
		}
	}

	cases := []struct {
		date   string
		want   int
		wantOK bool
	}{
		{"2018-09-30", 0, false},
		{"2018-10-01", 1, true},
		{"2018-11-14", 1, true},
		{"2018-11-15", 2, true},
		{"2019-01-01", 2, true},
	}
	for _, tc := range cases {
		got, ok, err := database.ThousandsAt(tc.date)
		if err != nil {
			t.Fatalf("ThousandsAt(%s): %v", tc.date, err)
		}
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("ThousandsAt(%s)=%d,%v want %d,%v", tc.date, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestRuns(t *testing.T) {
	database := openTestDB(t)

	run, err := database.StartRun(RunModeNew)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if run.ID == "" {
		t.Fatalf("expected run id")
	}
	run.ImagesRead = 5
	run.ImagesFailed = 1
	if err := database.FinishRun(run, errors.New("boom")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := database.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len=%d want 1", len(runs))
	}
	got := runs[0]
	if got.ImagesRead != 5 || got.ImagesFailed != 1 || got.Error != "boom" || got.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", got)
	}

	if err := database.FinishRun(&Run{ID: "missing"}, nil); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
