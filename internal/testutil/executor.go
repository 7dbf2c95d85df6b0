package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/meterelf/meterelf-store/internal/runner"
)

// CommandCall records a single process invocation.
type CommandCall struct {
	Name string
	Args []string
	Dir  string
}

// MockExecutor records and simulates process runs.
// It implements runner.Executor.
type MockExecutor struct {
	mu sync.Mutex

	// RecordedCalls contains all invocations in order.
	RecordedCalls []CommandCall

	// MockResult is returned by Run unless ResultFunc is set.
	MockResult *runner.Result

	// MockError is returned by Run unless ResultFunc is set.
	MockError error

	// ResultFunc allows dynamic results based on the invocation.
	ResultFunc func(spec runner.Spec) (*runner.Result, error)
}

// NewMockExecutor creates a mock returning fixed stdout, exit code 0.
func NewMockExecutor(stdout []byte, err error) *MockExecutor {
	return &MockExecutor{MockResult: &runner.Result{Stdout: stdout}, MockError: err}
}

// NewMockExecutorFunc creates a mock with dynamic behavior.
func NewMockExecutorFunc(fn func(spec runner.Spec) (*runner.Result, error)) *MockExecutor {
	return &MockExecutor{ResultFunc: fn}
}

// Run records the call and returns the configured result.
func (m *MockExecutor) Run(ctx context.Context, spec runner.Spec) (*runner.Result, error) {
	m.mu.Lock()
	m.RecordedCalls = append(m.RecordedCalls, CommandCall{
		Name: spec.Name,
		Args: append([]string(nil), spec.Args...),
		Dir:  spec.Dir,
	})
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.ResultFunc != nil {
		return m.ResultFunc(spec)
	}
	if m.MockResult == nil {
		return &runner.Result{}, m.MockError
	}
	res := *m.MockResult
	return &res, m.MockError
}

// CallCount returns the number of recorded calls.
func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// LastCall returns a copy of the most recent call, or nil if none.
func (m *MockExecutor) LastCall() *CommandCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.RecordedCalls) == 0 {
		return nil
	}
	call := m.RecordedCalls[len(m.RecordedCalls)-1]
	return &call
}

// Reset clears all recorded calls.
func (m *MockExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordedCalls = nil
}

// WasCalledWith returns true if the command was invoked with exactly args.
func (m *MockExecutor) WasCalledWith(name string, args ...string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, call := range m.RecordedCalls {
		if call.Name == name && argsMatch(call.Args, args) {
			return true
		}
	}
	return false
}

func argsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SequenceExecutor returns a different result per call, in order.
type SequenceExecutor struct {
	mu       sync.Mutex
	index    int
	Sequence []SequenceStep
}

// SequenceStep defines the result of one call.
type SequenceStep struct {
	Result *runner.Result
	Error  error
}

// NewSequenceExecutor creates a SequenceExecutor.
func NewSequenceExecutor(steps ...SequenceStep) *SequenceExecutor {
	return &SequenceExecutor{Sequence: steps}
}

// Run returns the next step, or an error when exhausted.
func (s *SequenceExecutor) Run(ctx context.Context, spec runner.Spec) (*runner.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index >= len(s.Sequence) {
		return nil, fmt.Errorf("mock sequence exhausted after %d calls", len(s.Sequence))
	}
	step := s.Sequence[s.index]
	s.index++
	return step.Result, step.Error
}

// MeterOutput builds fake reader stdout: one "<path>: <value>" line per
// image, with values taken from values by base name. Images without a
// value get "Dials not found".
func MeterOutput(values map[string]string, paths []string) []byte {
	var out []byte
	for _, p := range paths {
		v, ok := values[baseName(p)]
		if !ok {
			v = "Dials not found"
		}
		out = append(out, p+": "+v+"\n"...)
	}
	return out
}

// FakeMeterReader returns an executor behaving like the meter reading tool:
// the first argument after the command words is the params file and the
// rest are image paths.
func FakeMeterReader(values map[string]string) *MockExecutor {
	return NewMockExecutorFunc(func(spec runner.Spec) (*runner.Result, error) {
		images := ImageArgs(spec.Args)
		return &runner.Result{Stdout: MeterOutput(values, images)}, nil
	})
}

// ImageArgs returns the arguments following the params file (the first
// argument ending in .yml or .yaml).
func ImageArgs(args []string) []string {
	for i, a := range args {
		if hasSuffix(a, ".yml") || hasSuffix(a, ".yaml") {
			return args[i+1:]
		}
	}
	return args
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}
