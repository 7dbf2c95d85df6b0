package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/meterelf/meterelf-store/internal/testutil"
)

// seedReadings stores a small day of readings: three accepted values, one
// failed image and one backward jitter.
func seedReadings(t *testing.T, h *testutil.Harness) {
	t.Helper()
	testutil.MakeThousands(t, h.DB, map[string]int{"2019-01-01": 1})
	testutil.MakeEntries(t, h.DB,
		testutil.Reading("20190105120000-00.jpg", 100.0),
		testutil.Reading("20190105120100-00.jpg", 101.5),
		testutil.Reading("20190105130000-00.jpg", 105.0),
		testutil.Failed("20190105130100-00.jpg", "UNKNOWN Dials not found"),
		testutil.Reading("20190105130200-00.jpg", 104.9),
	)
}

func TestVisualizeCommand_DayReport(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, stderr, err := executeCommand(rootCmd, "visualize")
	testutil.RequireNoError(t, err, "visualize")

	if !strings.Contains(stdout, "2019-01-05 Sat") {
		t.Errorf("report missing day group:\n%s", stdout)
	}
	if !strings.Contains(stderr, "Ignoring 20190105130100-00.jpg") {
		t.Errorf("expected ignore warning on stderr, got:\n%s", stderr)
	}
}

func TestVisualizeCommand_JSONItems(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "-j", "visualize", "-r", "day")
	testutil.RequireNoError(t, err, "visualize")

	var items []itemView
	if err := json.Unmarshal([]byte(stdout), &items); err != nil {
		t.Fatalf("failed to parse JSON output: %v\n%s", err, stdout)
	}
	testutil.RequireLen(t, items, 1, "items")
	got := items[0]
	got.Start, got.End = "", ""
	want := itemView{
		Group:        "2019-01-05 Sat",
		MinValue:     1100,
		MaxValue:     1105,
		Litres:       5,
		Cumulative:   5,
		DaySum:       5,
		DayZeroings:  1,
		SourcePoints: 4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestVisualizeCommand_HourGroupsAndGap(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "-j", "visualize", "--resolution", "minute")
	testutil.RequireNoError(t, err, "visualize")

	var items []itemView
	if err := json.Unmarshal([]byte(stdout), &items); err != nil {
		t.Fatalf("failed to parse JSON output: %v\n%s", err, stdout)
	}
	var gaps int
	for _, it := range items {
		if it.Group == "" {
			gaps++
		}
	}
	if gaps == 0 {
		t.Errorf("expected a gap between 12:01 and 13:00, got %+v", items)
	}
}

func TestVisualizeCommand_UnknownResolution(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	if _, _, err := executeCommand(rootCmd, "visualize", "-r", "fortnight"); err == nil {
		t.Fatal("expected error for unknown resolution")
	}
}

func TestRawCommand_Table(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "raw")
	testutil.RequireNoError(t, err, "raw")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	testutil.RequireLen(t, lines, 5, "header and four values")
	if !strings.HasPrefix(lines[0], "time\tvalue\tlitres_per_minute") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[2], "\t1101.500000000\t1.500000000\t") {
		t.Errorf("unexpected second value %q", lines[2])
	}
}

func TestRawCommand_InfluxAndStartFrom(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "raw", "--format", "influx", "--start-from", "2019-01-05T12:30:00+02:00")
	testutil.RequireNoError(t, err, "raw")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	testutil.RequireLen(t, lines, 2, "values since 12:30")
	if !strings.HasPrefix(lines[0], "water value=1105.000000000,") {
		t.Errorf("unexpected first line %q", lines[0])
	}
}

func TestRawCommand_UnknownFormat(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	if _, _, err := executeCommand(rootCmd, "raw", "--format", "csv"); err == nil {
		t.Fatal("expected error for unknown raw format")
	}
}

func TestIgnoresCommand(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "ignores")
	testutil.RequireNoError(t, err, "ignores")

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	testutil.RequireLen(t, lines, 5, "rows")
	if !strings.HasPrefix(lines[0], "OK 20190105120000-00.jpg") {
		t.Errorf("unexpected accepted row %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "   20190105130100-00.jpg") || !strings.Contains(lines[3], "Dials not found") {
		t.Errorf("unexpected ignored row %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], "c  20190105130200-00.jpg") || !strings.Contains(lines[4], "Backward jitter") {
		t.Errorf("unexpected corrected row %q", lines[4])
	}
}

func TestStartFrom_DateOnly(t *testing.T) {
	h := newCLIHarness(t, nil)
	seedReadings(t, h)

	stdout, _, err := executeCommand(rootCmd, "raw", "--start-from", "2019-01-06")
	testutil.RequireNoError(t, err, "raw")
	if strings.TrimSpace(stdout) != "" {
		t.Errorf("expected no values after the last day, got %q", stdout)
	}

	if _, _, err := executeCommand(rootCmd, "raw", "--start-from", "yesterday"); err == nil {
		t.Fatal("expected error for invalid --start-from")
	}
}
