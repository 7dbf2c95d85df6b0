// Package runner executes external programs and captures their output
// streams and exit status separately.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// ErrEmptyCommand is returned when a command line has no words.
var ErrEmptyCommand = errors.New("empty command")

// Result holds the outcome of one process run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	// TimedOut is set when the context deadline killed the process.
	TimedOut bool
}

// Spec describes a process to start.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// Executor runs a process to completion.
//
// A non-zero exit status is not an error: it is reported in Result.ExitCode.
// Errors are reserved for processes that could not be run at all.
type Executor interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecExecutor runs real processes with os/exec.
type ExecExecutor struct{}

// Run starts spec and waits for it.
func (ExecExecutor) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Name == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
			res.ExitCode = -1
			return res, fmt.Errorf("running %s: %w", spec.Name, ctx.Err())
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		default:
			return res, fmt.Errorf("running %s: %w", spec.Name, err)
		}
	}
	return res, nil
}

// SplitCommand splits a shell-like command line into words, honoring quotes
// and expanding environment variables.
func SplitCommand(line string) ([]string, error) {
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyCommand
	}
	p := shellwords.NewParser()
	p.ParseEnv = true
	words, err := p.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", line, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}
	return words, nil
}

// CommandSpec builds a Spec from a command line and extra arguments.
func CommandSpec(line string, args ...string) (Spec, error) {
	words, err := SplitCommand(line)
	if err != nil {
		return Spec{}, err
	}
	all := make([]string, 0, len(words)-1+len(args))
	all = append(all, words[1:]...)
	all = append(all, args...)
	return Spec{Name: words[0], Args: all}, nil
}
