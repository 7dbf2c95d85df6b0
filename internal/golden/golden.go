// Package golden runs the meter reading tool over a directory of sample
// images and compares its output with recorded golden files.
//
// For an expected prefix P the golden files are P.expected_stdout and
// P.expected_stderr. A run passes only when the tool exits with 0 and both
// streams match.
package golden

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/meterelf/meterelf-store/internal/reader"
	"github.com/meterelf/meterelf-store/internal/runner"
)

var (
	// ErrNoSamples is returned when the glob matches no sample images.
	ErrNoSamples = errors.New("no sample images found")
	// ErrMissingGolden is returned when a golden file does not exist and
	// Update is not set.
	ErrMissingGolden = errors.New("golden file missing (run with --update to record it)")
)

// Golden file suffixes.
const (
	StdoutSuffix = ".expected_stdout"
	StderrSuffix = ".expected_stderr"
)

// DefaultGlob selects the sample images.
const DefaultGlob = "*.jpg"

// Options configures a harness run.
type Options struct {
	// Tool is the command line of the tool, split with shell rules.
	Tool string
	// Params is the config file passed before the images.
	Params string
	// Dir is the sample directory; the tool runs in it.
	Dir  string
	Glob string
	// Expected is the path prefix of the golden files.
	Expected string
	// Update records the captured output as the new golden files.
	Update bool
	// Repeat runs the tool this many times and requires identical results.
	Repeat int
	// Tolerant compares stdout per image value instead of byte for byte.
	Tolerant bool
	Timeout  time.Duration
	Executor runner.Executor
	Logger   *log.Logger
}

// Result is the outcome of a harness run.
type Result struct {
	Images     []string
	ExitCode   int
	Stdout     []byte
	Stderr     []byte
	StdoutDiff string
	StderrDiff string
	// Nondeterminism lists differences between repeated runs.
	Nondeterminism []string
	Updated        bool
	Passed         bool
}

// Run executes the harness.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Glob == "" {
		opts.Glob = DefaultGlob
	}
	if opts.Repeat <= 0 {
		opts.Repeat = 1
	}
	if opts.Executor == nil {
		opts.Executor = runner.ExecExecutor{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("golden")
	}
	if opts.Expected == "" {
		return nil, fmt.Errorf("expected output prefix is required")
	}
	if strings.TrimSpace(opts.Params) == "" {
		return nil, reader.ErrParamsFileRequired
	}

	images, err := SampleImages(opts.Dir, opts.Glob)
	if err != nil {
		return nil, err
	}

	spec, err := runner.CommandSpec(opts.Tool, append([]string{opts.Params}, images...)...)
	if err != nil {
		return nil, err
	}
	spec.Dir = opts.Dir

	scratch, err := os.MkdirTemp("", "meterelf-golden-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	result := &Result{Images: images}
	for i := 1; i <= opts.Repeat; i++ {
		logger.Debug("running tool", "run", i, "command", spec.Name, "images", len(images))
		captured, err := runOnce(ctx, opts, spec, scratch, i)
		if err != nil {
			return nil, err
		}
		if i == 1 {
			result.ExitCode = captured.ExitCode
			result.Stdout = captured.Stdout
			result.Stderr = captured.Stderr
			continue
		}
		result.Nondeterminism = append(result.Nondeterminism, compareRuns(i, result, captured)...)
	}

	stdoutPath := opts.Expected + StdoutSuffix
	stderrPath := opts.Expected + StderrSuffix
	if opts.Update {
		if err := writeGolden(stdoutPath, result.Stdout); err != nil {
			return nil, err
		}
		if err := writeGolden(stderrPath, result.Stderr); err != nil {
			return nil, err
		}
		result.Updated = true
	} else {
		wantOut, err := readGolden(stdoutPath)
		if err != nil {
			return nil, err
		}
		wantErr, err := readGolden(stderrPath)
		if err != nil {
			return nil, err
		}
		if opts.Tolerant {
			result.StdoutDiff = strings.Join(CompareTolerant(wantOut, result.Stdout), "\n")
		} else {
			result.StdoutDiff = Diff(stdoutPath, "stdout", wantOut, result.Stdout)
		}
		result.StderrDiff = Diff(stderrPath, "stderr", wantErr, result.Stderr)
	}

	result.Passed = result.ExitCode == 0 &&
		result.StdoutDiff == "" &&
		result.StderrDiff == "" &&
		len(result.Nondeterminism) == 0
	return result, nil
}

// runOnce runs the tool with its streams captured into files of the
// scratch directory.
func runOnce(ctx context.Context, opts Options, spec runner.Spec, scratch string, n int) (*runner.Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	res, err := opts.Executor.Run(ctx, spec)
	if errors.Is(err, context.DeadlineExceeded) || (res != nil && res.TimedOut) {
		return nil, fmt.Errorf("running %s: timed out after %s", spec.Name, opts.Timeout)
	}
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", spec.Name, err)
	}

	outPath := filepath.Join(scratch, fmt.Sprintf("stdout.%d", n))
	errPath := filepath.Join(scratch, fmt.Sprintf("stderr.%d", n))
	if err := os.WriteFile(outPath, res.Stdout, 0600); err != nil {
		return nil, fmt.Errorf("capturing stdout: %w", err)
	}
	if err := os.WriteFile(errPath, res.Stderr, 0600); err != nil {
		return nil, fmt.Errorf("capturing stderr: %w", err)
	}

	captured := &runner.Result{ExitCode: res.ExitCode, Duration: res.Duration}
	if captured.Stdout, err = os.ReadFile(outPath); err != nil {
		return nil, fmt.Errorf("reading captured stdout: %w", err)
	}
	if captured.Stderr, err = os.ReadFile(errPath); err != nil {
		return nil, fmt.Errorf("reading captured stderr: %w", err)
	}
	return captured, nil
}

func compareRuns(n int, first *Result, res *runner.Result) []string {
	var diffs []string
	if res.ExitCode != first.ExitCode {
		diffs = append(diffs, fmt.Sprintf("run %d: exit code %d differs from %d", n, res.ExitCode, first.ExitCode))
	}
	if !bytes.Equal(res.Stdout, first.Stdout) {
		diffs = append(diffs, fmt.Sprintf("run %d: stdout differs\n%s", n, Diff("run 1", fmt.Sprintf("run %d", n), first.Stdout, res.Stdout)))
	}
	if !bytes.Equal(res.Stderr, first.Stderr) {
		diffs = append(diffs, fmt.Sprintf("run %d: stderr differs\n%s", n, Diff("run 1", fmt.Sprintf("run %d", n), first.Stderr, res.Stderr)))
	}
	return diffs
}

// SampleImages returns the base names of files in dir matching pattern,
// sorted.
func SampleImages(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	var images []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		images = append(images, filepath.Base(m))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoSamples, pattern, dir)
	}
	sort.Strings(images)
	return images, nil
}

// Diff returns a unified diff of want and got, or "" when they are equal.
func Diff(wantName, gotName string, want, got []byte) string {
	if bytes.Equal(want, got) {
		return ""
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(want)),
		B:        difflib.SplitLines(string(got)),
		FromFile: wantName,
		ToFile:   gotName,
		Context:  3,
	})
	if err != nil || text == "" {
		// Differences difflib cannot show, such as a missing final newline.
		return fmt.Sprintf("--- %s\n+++ %s\n(%d bytes vs %d bytes)\n", wantName, gotName, len(want), len(got))
	}
	return text
}

func readGolden(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingGolden, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading golden file: %w", err)
	}
	return data, nil
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating golden dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing golden file: %w", err)
	}
	return nil
}

// Write prints the diffs and the verdict of r.
func (r *Result) Write(w io.Writer) error {
	var b strings.Builder
	if r.Updated {
		fmt.Fprintf(&b, "Updated golden files from %d images (exit code %d)\n", len(r.Images), r.ExitCode)
	}
	if r.ExitCode != 0 {
		fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	}
	if r.StdoutDiff != "" {
		fmt.Fprintf(&b, "Stdout differs:\n%s\n", strings.TrimRight(r.StdoutDiff, "\n"))
	}
	if r.StderrDiff != "" {
		fmt.Fprintf(&b, "Stderr differs:\n%s\n", strings.TrimRight(r.StderrDiff, "\n"))
	}
	for _, n := range r.Nondeterminism {
		fmt.Fprintf(&b, "Nondeterministic output: %s\n", strings.TrimRight(n, "\n"))
	}
	if r.Passed {
		fmt.Fprintf(&b, "PASS (%d images)\n", len(r.Images))
	} else {
		fmt.Fprintf(&b, "FAIL (%d images)\n", len(r.Images))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
