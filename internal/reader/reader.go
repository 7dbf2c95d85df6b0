// Package reader runs the external meter reading tool over image files and
// parses what it prints.
//
// The tool is invoked as `<command...> <params-file> <image>...` and prints
// one `<image>: <value-or-error>` line per image.
package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.yaml.in/yaml/v3"

	"github.com/meterelf/meterelf-store/internal/runner"
	"github.com/meterelf/meterelf-store/internal/utils"
)

var (
	// ErrParamsFileRequired is returned when no params file is configured.
	ErrParamsFileRequired = errors.New("meter reader params file is required (reader.params_file or METERELF_PARAMS_FILE)")
	// ErrInvalidLine is returned for output lines without a ": " separator.
	ErrInvalidLine = errors.New("invalid reader output line")
	// ErrReaderFailed is returned when the tool exits non-zero without
	// producing any usable output.
	ErrReaderFailed = errors.New("meter reader failed")
)

// DefaultCommand is the reader command used when none is configured.
const DefaultCommand = "meterelf"

// DefaultTimeout bounds a single reader invocation.
const DefaultTimeout = 10 * time.Minute

// MeterImageData is the reading of a single image.
type MeterImageData struct {
	Filename string
	Value    *float64
	Error    string
}

// FormatValue renders the value as stored in the database and printed by
// collection: zero padded with three decimals, or "UNKNOWN <error>".
func (d MeterImageData) FormatValue() string {
	if d.Value != nil && d.Error == "" {
		return fmt.Sprintf("%07.3f", *d.Value)
	}
	return "UNKNOWN " + d.Error
}

// Options configures a Reader.
type Options struct {
	Command    string
	ParamsFile string
	Timeout    time.Duration
	Dir        string
	Executor   runner.Executor
	Logger     *log.Logger
}

// Reader runs the meter reading tool.
type Reader struct {
	command    []string
	paramsFile string
	timeout    time.Duration
	dir        string
	exec       runner.Executor
	logger     *log.Logger
}

// New validates options and returns a Reader.
func New(opts Options) (*Reader, error) {
	if opts.ParamsFile == "" {
		return nil, ErrParamsFileRequired
	}
	line := opts.Command
	if line == "" {
		line = DefaultCommand
	}
	words, err := runner.SplitCommand(line)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		command:    words,
		paramsFile: opts.ParamsFile,
		timeout:    opts.Timeout,
		dir:        opts.Dir,
		exec:       opts.Executor,
		logger:     opts.Logger,
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.exec == nil {
		r.exec = runner.ExecExecutor{}
	}
	if r.logger == nil {
		r.logger = log.Default().WithPrefix("reader")
	}
	return r, nil
}

// ParamsFile returns the params file passed to the tool.
func (r *Reader) ParamsFile() string {
	return r.paramsFile
}

// CheckParams verifies that the params file exists and is YAML.
func CheckParams(path string) error {
	if path == "" {
		return ErrParamsFileRequired
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading params file: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing params file %s: %w", path, err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("params file %s is empty", path)
	}
	return nil
}

// Read runs the tool over paths and returns one result per reported image,
// in the order the tool printed them.
func (r *Reader) Read(ctx context.Context, paths []string) ([]MeterImageData, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, len(r.command)+len(paths))
	args = append(args, r.command[1:]...)
	args = append(args, r.paramsFile)
	args = append(args, paths...)

	r.logger.Debug("running reader", "command", r.command[0], "images", len(paths))
	res, err := r.exec.Run(ctx, runner.Spec{Name: r.command[0], Args: args, Dir: r.dir})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReaderFailed, err)
	}

	data, parseErr := ParseOutput(res.Stdout)
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(string(res.Stderr))
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: exit code %d: %s", ErrReaderFailed, res.ExitCode, stderr)
		}
		r.logger.Warn("reader exited with error", "exit_code", res.ExitCode, "stderr", stderr)
	} else if len(res.Stderr) > 0 {
		r.logger.Debug("reader stderr", "stderr", strings.TrimSpace(string(res.Stderr)))
	}
	if parseErr != nil {
		return data, parseErr
	}
	return data, nil
}

// ParseOutput parses reader stdout. Empty lines are skipped and terminal
// color codes are dropped.
func ParseOutput(out []byte) ([]MeterImageData, error) {
	out = utils.StripANSIBytes(out)
	var (
		result []MeterImageData
		errs   []error
	)
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n ")
		if line == "" {
			continue
		}
		d, err := ParseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result = append(result, d)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("scanning reader output: %w", err))
	}
	return result, errors.Join(errs...)
}

// ParseLine parses a `<filename>: <value-or-error>` line. A value is a
// decimal number; anything else is taken as an error text.
func ParseLine(line string) (MeterImageData, error) {
	name, rest, ok := strings.Cut(line, ": ")
	if !ok {
		return MeterImageData{}, fmt.Errorf("%w: %q", ErrInvalidLine, line)
	}
	d := MeterImageData{Filename: filepath.Base(name)}

	// The reader may append debug data after the value.
	field, _, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if IsDecimal(field) {
		v, err := strconv.ParseFloat(field, 64)
		if err == nil {
			d.Value = &v
			return d, nil
		}
	}
	d.Error = utils.SanitizeInput(strings.TrimSpace(rest))
	return d, nil
}

// IsDecimal reports whether s consists of digits and dots only, with at
// least one digit.
func IsDecimal(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return false
		}
	}
	return digits > 0
}
