package golden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/meterelf/meterelf-store/internal/reader"
	"github.com/meterelf/meterelf-store/internal/runner"
	"github.com/meterelf/meterelf-store/internal/testutil"
)

type sampleDir struct {
	dir      string
	expected string
}

func newSampleDir(t *testing.T, stdout, stderr string) sampleDir {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "sample-images1")
	testutil.RequireNoError(t, os.MkdirAll(dir, 0750), "mkdir")
	for _, name := range []string{"b.jpg", "a.jpg", "notes.txt", "params.yml"} {
		testutil.RequireNoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600), "write "+name)
	}
	expected := filepath.Join(root, "test_reader")
	if stdout != "" || stderr != "" {
		testutil.RequireNoError(t, os.WriteFile(expected+StdoutSuffix, []byte(stdout), 0600), "write stdout")
		testutil.RequireNoError(t, os.WriteFile(expected+StderrSuffix, []byte(stderr), 0600), "write stderr")
	}
	return sampleDir{dir: dir, expected: expected}
}

// echoValues prints "<image>: <value>" for every image argument.
func echoValues(values map[string]string, exitCode int) *testutil.MockExecutor {
	return testutil.NewMockExecutorFunc(func(spec runner.Spec) (*runner.Result, error) {
		var b strings.Builder
		for _, img := range spec.Args[1:] {
			b.WriteString(img + ": " + values[img] + "\n")
		}
		return &runner.Result{ExitCode: exitCode, Stdout: []byte(b.String())}, nil
	})
}

func TestRun_Passes(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	mock := echoValues(map[string]string{"a.jpg": "1.000", "b.jpg": "2.000"}, 0)

	res, err := Run(context.Background(), Options{
		Tool:     "meterelf",
		Params:   "params.yml",
		Dir:      s.dir,
		Expected: s.expected,
		Executor: mock,
		Logger:   testutil.TestLogger(t),
	})
	testutil.RequireNoError(t, err, "Run")
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}

	call := mock.LastCall()
	if diff := cmp.Diff([]string{"params.yml", "a.jpg", "b.jpg"}, call.Args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	testutil.RequireEqual(t, s.dir, call.Dir, "tool runs in the sample dir")
}

func TestRun_StdoutMismatch(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	mock := echoValues(map[string]string{"a.jpg": "1.500", "b.jpg": "2.000"}, 0)

	res, err := Run(context.Background(), Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: mock})
	testutil.RequireNoError(t, err, "Run")
	if res.Passed {
		t.Fatalf("expected failure")
	}
	for _, want := range []string{"-a.jpg: 1.000", "+a.jpg: 1.500"} {
		if !strings.Contains(res.StdoutDiff, want) {
			t.Errorf("diff missing %q:\n%s", want, res.StdoutDiff)
		}
	}
	testutil.RequireEqual(t, "", res.StderrDiff, "stderr diff")

	var out strings.Builder
	testutil.RequireNoError(t, res.Write(&out), "Write")
	if !strings.Contains(out.String(), "Stdout differs:") || !strings.HasSuffix(out.String(), "FAIL (2 images)\n") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
}

func TestRun_NonZeroExitFails(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	mock := echoValues(map[string]string{"a.jpg": "1.000", "b.jpg": "2.000"}, 1)

	res, err := Run(context.Background(), Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: mock})
	testutil.RequireNoError(t, err, "Run")
	if res.Passed || res.StdoutDiff != "" {
		t.Fatalf("expected exit code failure with clean diff, got %+v", res)
	}
}

func TestRun_StderrMismatch(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\n", "")
	mock := testutil.NewMockExecutorFunc(func(spec runner.Spec) (*runner.Result, error) {
		return &runner.Result{Stdout: []byte("a.jpg: 1.000\n"), Stderr: []byte("warning\n")}, nil
	})
	res, err := Run(context.Background(), Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: mock})
	testutil.RequireNoError(t, err, "Run")
	if res.Passed || !strings.Contains(res.StderrDiff, "+warning") {
		t.Fatalf("expected stderr failure, got %+v", res)
	}
}

func TestRun_UpdateThenCompare(t *testing.T) {
	s := newSampleDir(t, "", "")
	mock := echoValues(map[string]string{"a.jpg": "1.000", "b.jpg": "2.000"}, 0)
	opts := Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: mock}

	if _, err := Run(context.Background(), opts); !errors.Is(err, ErrMissingGolden) {
		t.Fatalf("expected ErrMissingGolden, got %v", err)
	}

	opts.Update = true
	res, err := Run(context.Background(), opts)
	testutil.RequireNoError(t, err, "Run update")
	if !res.Updated || !res.Passed {
		t.Fatalf("unexpected update result: %+v", res)
	}
	data, err := os.ReadFile(s.expected + StdoutSuffix)
	testutil.RequireNoError(t, err, "read golden")
	testutil.RequireEqual(t, "a.jpg: 1.000\nb.jpg: 2.000\n", string(data), "recorded stdout")

	opts.Update = false
	res, err = Run(context.Background(), opts)
	testutil.RequireNoError(t, err, "Run compare")
	if !res.Passed {
		t.Fatalf("expected pass after update: %+v", res)
	}
}

func TestRun_RepeatDetectsNondeterminism(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\n", "")
	seq := testutil.NewSequenceExecutor(
		testutil.SequenceStep{Result: &runner.Result{Stdout: []byte("a.jpg: 1.000\n")}},
		testutil.SequenceStep{Result: &runner.Result{Stdout: []byte("a.jpg: 1.000\n")}},
		testutil.SequenceStep{Result: &runner.Result{Stdout: []byte("a.jpg: 1.001\n"), ExitCode: 1}},
	)
	res, err := Run(context.Background(), Options{
		Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: seq, Repeat: 3,
	})
	testutil.RequireNoError(t, err, "Run")
	if res.Passed {
		t.Fatalf("expected nondeterminism failure")
	}
	testutil.RequireLen(t, res.Nondeterminism, 2, "differences")
	if !strings.HasPrefix(res.Nondeterminism[0], "run 3: exit code 1") {
		t.Fatalf("unexpected difference: %q", res.Nondeterminism[0])
	}
}

func TestRun_RemovesScratchDir(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	mock := echoValues(map[string]string{"a.jpg": "1.000", "b.jpg": "2.000"}, 0)

	_, err := Run(context.Background(), Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected, Executor: mock})
	testutil.RequireNoError(t, err, "Run")

	entries, err := os.ReadDir(tmp)
	testutil.RequireNoError(t, err, "ReadDir")
	testutil.RequireLen(t, entries, 0, "leftover scratch entries")
}

func TestRun_NoSamples(t *testing.T) {
	s := newSampleDir(t, "x", "")
	_, err := Run(context.Background(), Options{Tool: "meterelf", Params: "params.yml", Dir: s.dir, Glob: "*.ppm", Expected: s.expected, Executor: testutil.NewMockExecutor(nil, nil)})
	if !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestRun_RequiresParams(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	mock := echoValues(map[string]string{"a.jpg": "1.000", "b.jpg": "2.000"}, 0)

	for _, params := range []string{"", "  "} {
		_, err := Run(context.Background(), Options{Tool: "meterelf", Params: params, Dir: s.dir, Expected: s.expected, Executor: mock})
		testutil.RequireErrorIs(t, err, reader.ErrParamsFileRequired, "Run without params")
	}
	testutil.RequireEqual(t, 0, mock.CallCount(), "tool must not run")
}

func TestRun_TimeoutIsReported(t *testing.T) {
	s := newSampleDir(t, "a.jpg: 1.000\nb.jpg: 2.000\n", "")
	mock := testutil.NewMockExecutorFunc(func(spec runner.Spec) (*runner.Result, error) {
		return &runner.Result{ExitCode: -1, TimedOut: true}, fmt.Errorf("running %s: %w", spec.Name, context.DeadlineExceeded)
	})

	_, err := Run(context.Background(), Options{
		Tool: "meterelf", Params: "params.yml", Dir: s.dir, Expected: s.expected,
		Executor: mock, Timeout: 2 * time.Second,
	})
	if err == nil || !strings.Contains(err.Error(), "timed out after 2s") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRun_RealProcess(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s := newSampleDir(t, "a.jpg: 0.000\nb.jpg: 0.000\n", "done\n")
	script := filepath.Join(t.TempDir(), "tool.sh")
	body := "shift\nfor f in \"$@\"; do echo \"$f: 0.000\"; done\necho done >&2\n"
	testutil.RequireNoError(t, os.WriteFile(script, []byte(body), 0600), "write script")

	res, err := Run(context.Background(), Options{
		Tool:     "sh " + script,
		Params:   "params.yml",
		Dir:      s.dir,
		Expected: s.expected,
		Repeat:   2,
	})
	testutil.RequireNoError(t, err, "Run")
	if !res.Passed {
		var out strings.Builder
		_ = res.Write(&out)
		t.Fatalf("expected pass:\n%s", out.String())
	}
}

func TestCompareTolerant(t *testing.T) {
	want := []byte("a.jpg: 253.623\nb.jpg: 100.000\nc.jpg: Dials not found\nd.jpg: 999.999\ne.jpg: 1.000\n")
	got := []byte("a.jpg: 253.624\nb.jpg: 100.500\nc.jpg: Dials not found\nd.jpg: 000.001\nf.jpg: 1.000\n")

	diffs := CompareTolerant(want, got)
	testutil.RequireLen(t, diffs, 3, "diff lines")
	// Coarse precisions are reported first.
	if !strings.HasPrefix(diffs[0], "e.jpg ") || !strings.HasSuffix(diffs[0], ": got: <missing> | expected: 1.000") {
		t.Errorf("unexpected missing diff: %q", diffs[0])
	}
	if !strings.HasPrefix(diffs[1], "b.jpg ") || !strings.HasSuffix(diffs[1], "    0.50 (got: 100.500 | expected: 100.000)") {
		t.Errorf("unexpected numeric diff: %q", diffs[1])
	}
	testutil.RequireEqual(t, "Failed 2 of 5 files", diffs[2], "summary")

	if d := CompareTolerant(want, want); d != nil {
		t.Fatalf("identical output should pass, got %v", d)
	}
}

func TestCompareTolerant_DialWrapBothWays(t *testing.T) {
	want := []byte("a.jpg: 000.002\nb.jpg: 999.998\nc.jpg: 000.100\n")
	got := []byte("a.jpg: 999.999\nb.jpg: 000.001\nc.jpg: 999.000\n")

	diffs := CompareTolerant(want, got)
	testutil.RequireLen(t, diffs, 2, "diff lines")
	if !strings.HasPrefix(diffs[0], "c.jpg ") || !strings.HasSuffix(diffs[0], "-1.10 (got: 999.000 | expected: 000.100)") {
		t.Errorf("unexpected wrap diff: %q", diffs[0])
	}
	testutil.RequireEqual(t, "Failed 1 of 3 files", diffs[1], "summary")
}

func TestDiff(t *testing.T) {
	testutil.RequireEqual(t, "", Diff("a", "b", []byte("x\n"), []byte("x\n")), "equal")
	d := Diff("want", "got", []byte("x\ny\n"), []byte("x\nz\n"))
	for _, s := range []string{"--- want", "+++ got", "-y", "+z"} {
		if !strings.Contains(d, s) {
			t.Errorf("diff missing %q:\n%s", s, d)
		}
	}
}
