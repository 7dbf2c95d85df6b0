package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/meterelf/meterelf-store/internal/testutil"
)

func TestCollectCommand_ReadsNewImages(t *testing.T) {
	reader := testutil.FakeMeterReader(map[string]string{
		"20190105120000-00.jpg": "253.623",
	})
	h := newCLIHarness(t, reader)
	day := time.Date(2019, 1, 5, 12, 0, 0, 0, testutil.Helsinki)
	h.AddImage(day, 0)
	h.AddImage(day.Add(time.Minute), 0)

	stdout, _, err := executeCommand(rootCmd,
		"--params", h.ParamsFile, "--images-dir", h.ImagesDir, "collect")
	testutil.RequireNoError(t, err, "collect")

	for _, want := range []string{
		"20190105120000-00.jpg:\t253.623\n",
		"20190105120100-00.jpg:\tUNKNOWN Dials not found\n",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
	testutil.RequireEqual(t, 1, reader.CallCount(), "reader calls")
	if call := reader.LastCall(); call.Name != "meterelf" || call.Args[0] != h.ParamsFile {
		t.Errorf("unexpected reader call %+v", call)
	}

	testutil.RequireReading(t, h.DB, "20190105120000-00.jpg", 253.623)
}

func TestCollectCommand_JSONStats(t *testing.T) {
	reader := testutil.FakeMeterReader(map[string]string{
		"20190105120000-00.jpg": "100.000",
	})
	h := newCLIHarness(t, reader)
	h.AddImage(time.Date(2019, 1, 5, 12, 0, 0, 0, testutil.Helsinki), 0)

	stdout, _, err := executeCommand(rootCmd,
		"-j", "-p", h.ParamsFile, "--images-dir", h.ImagesDir, "collect")
	testutil.RequireNoError(t, err, "collect")

	var got statsView
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("failed to parse JSON output: %v\n%s", err, stdout)
	}
	want := statsView{Mode: "new", Dirs: 1, ImagesRead: 1, Inserted: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectCommand_RereadReplacesRows(t *testing.T) {
	reader := testutil.FakeMeterReader(map[string]string{
		"20190105120000-00.jpg": "254.000",
	})
	h := newCLIHarness(t, reader)
	path := h.AddImage(time.Date(2019, 1, 5, 12, 0, 0, 0, testutil.Helsinki), 0)
	testutil.MakeEntries(t, h.DB, testutil.Failed("20190105120000-00.jpg", "UNKNOWN Dials not found"))

	_, _, err := executeCommand(rootCmd, "-p", h.ParamsFile, "--images-dir", h.ImagesDir, "collect", path)
	testutil.RequireNoError(t, err, "collect reread")

	testutil.RequireReading(t, h.DB, "20190105120000-00.jpg", 254)

	runs, err := h.DB.ListRuns(1)
	testutil.RequireNoError(t, err, "ListRuns")
	testutil.RequireLen(t, runs, 1, "runs")
	testutil.RequireEqual(t, "reread", runs[0].Mode, "run mode")
}

func TestCollectCommand_RequiresParams(t *testing.T) {
	h := newCLIHarness(t, testutil.FakeMeterReader(nil))
	_, _, err := executeCommand(rootCmd, "--images-dir", h.ImagesDir, "collect")
	if err == nil || !strings.Contains(err.Error(), "params file is required") {
		t.Fatalf("expected params error, got %v", err)
	}
}

func TestCollectCommand_ParamsFromDotEnv(t *testing.T) {
	reader := testutil.FakeMeterReader(nil)
	h := newCLIHarness(t, reader)
	h.WriteFile(".env", []byte("METERELF_PARAMS_FILE="+h.ParamsFile+"\n"), 0600)
	h.AddImage(time.Date(2019, 1, 5, 12, 0, 0, 0, testutil.Helsinki), 0)

	_, _, err := executeCommand(rootCmd, "--images-dir", h.ImagesDir, "collect")
	testutil.RequireNoError(t, err, "collect")
	testutil.RequireEqual(t, 1, reader.CallCount(), "reader calls")
}

func TestImportCommand(t *testing.T) {
	h := newCLIHarness(t, nil)
	h.WriteFile("images/2019-01/values-05.txt", []byte(
		"20190105120000-00.jpg: 253.623\n"+
			"20190105120100-00.jpg: Dials not found\n"), 0600)

	stdout, _, err := executeCommand(rootCmd, "-j", "--images-dir", h.ImagesDir, "import")
	testutil.RequireNoError(t, err, "import")

	var got map[string]int
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("failed to parse JSON output: %v\n%s", err, stdout)
	}
	if diff := cmp.Diff(map[string]int{"files": 1, "lines": 2, "inserted": 2}, got); diff != "" {
		t.Errorf("import stats mismatch (-want +got):\n%s", diff)
	}

	e, err := h.DB.GetEntry("20190105120100-00.jpg")
	testutil.RequireNoError(t, err, "GetEntry")
	testutil.RequireEqual(t, "Dials not found", e.Error, "stored error")
}

func TestRunsCommand(t *testing.T) {
	h := newCLIHarness(t, nil)
	run, err := h.DB.StartRun("new")
	testutil.RequireNoError(t, err, "StartRun")
	run.ImagesRead = 7
	testutil.RequireNoError(t, h.DB.FinishRun(run, nil), "FinishRun")

	stdout, _, err := executeCommand(rootCmd, "runs")
	testutil.RequireNoError(t, err, "runs")

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	testutil.RequireLen(t, lines, 2, "table lines")
	if !strings.HasPrefix(lines[0], "id") || !strings.Contains(lines[0], "failed") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], run.ID[:8]) || !strings.Contains(lines[1], " new ") || !strings.Contains(lines[1], " 7 ") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestRunsCommand_MissingDatabase(t *testing.T) {
	newCLIHarness(t, nil)
	_, _, err := executeCommand(rootCmd, "--db", "missing.db", "runs")
	if err == nil || !strings.Contains(err.Error(), "database not found") {
		t.Fatalf("expected database not found, got %v", err)
	}
}

func TestWatchCommand_CollectsBacklogAndStops(t *testing.T) {
	reader := testutil.FakeMeterReader(map[string]string{
		"20190105120000-00.jpg": "253.623",
	})
	h := newCLIHarness(t, reader)
	h.AddImage(time.Date(2019, 1, 5, 12, 0, 0, 0, testutil.Helsinki), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	// ExecuteContext leaves ctx on the commands.
	t.Cleanup(func() {
		rootCmd.SetContext(context.Background())
		watchCmd.SetContext(context.Background())
	})

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"-p", h.ParamsFile, "--images-dir", h.ImagesDir, "watch", "--debounce", "10ms"})
	err := rootCmd.ExecuteContext(ctx)
	testutil.RequireNoError(t, err, "watch")

	ok, err := h.DB.HasFilename("20190105120000-00.jpg")
	testutil.RequireNoError(t, err, "HasFilename")
	if !ok {
		t.Fatalf("backlog image not collected; stderr:\n%s", stderr.String())
	}
}
