package utils

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestProcessInBlocks(t *testing.T) {
	items := make([]int, 450)
	for i := range items {
		items[i] = i
	}

	var sizes []int
	var seen int
	err := ProcessInBlocks(items, 200, func(block []int) error {
		sizes = append(sizes, len(block))
		for _, v := range block {
			if v != seen {
				t.Fatalf("out of order item %d, want %d", v, seen)
			}
			seen++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ProcessInBlocks: %v", err)
	}
	if len(sizes) != 3 || sizes[0] != 200 || sizes[1] != 200 || sizes[2] != 50 {
		t.Fatalf("unexpected block sizes: %v", sizes)
	}
}

func TestProcessInBlocks_EmptyAndDefaultSize(t *testing.T) {
	calls := 0
	if err := ProcessInBlocks([]string{}, 0, func([]string) error { calls++; return nil }); err != nil {
		t.Fatalf("ProcessInBlocks: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no calls for empty input, got %d", calls)
	}

	items := make([]string, DefaultBlockSize+1)
	var sizes []int
	_ = ProcessInBlocks(items, 0, func(b []string) error { sizes = append(sizes, len(b)); return nil })
	if len(sizes) != 2 || sizes[0] != DefaultBlockSize || sizes[1] != 1 {
		t.Fatalf("unexpected sizes with default: %v", sizes)
	}
}

func TestProcessInBlocks_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ProcessInBlocks(make([]int, 10), 3, func([]int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d want 2", calls)
	}
}

func TestStripANSI(t *testing.T) {
	in := "\x1b[1;32m253.623\x1b[0m litres"
	if got := StripANSI(in); got != "253.623 litres" {
		t.Fatalf("StripANSI=%q", got)
	}
	if got := SanitizeInput("a\x00b\tc\n\x1b[31md"); got != "ab\tc\nd" {
		t.Fatalf("SanitizeInput=%q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"unknown", log.InfoLevel},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestInitLogger_WritesOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger(LoggerOptions{
		Level:  "debug",
		Output: &buf,
		Prefix: "test",
	})

	logger.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected output to contain message; got %q", buf.String())
	}
}

func TestInitDefaultLogger_RespectsEnvOverride(t *testing.T) {
	t.Setenv("METERELF_LOG_LEVEL", "debug")
	logger := InitDefaultLogger()
	if logger.GetLevel() != log.DebugLevel {
		t.Fatalf("level=%v want debug", logger.GetLevel())
	}
}

func TestInitRunLogger_CreatesLogFileUnderProject(t *testing.T) {
	projectDir := t.TempDir()

	logger, f, err := InitRunLogger(projectDir, "collect")
	if err != nil {
		t.Fatalf("InitRunLogger: %v", err)
	}
	defer f.Close()
	logger.Info("run started")

	matches, err := filepath.Glob(filepath.Join(projectDir, ".meterelf", "logs", "*_collect.log"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 log file, got %d: %#v", len(matches), matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "run started") {
		t.Fatalf("log file missing message: %q", data)
	}
}

func TestDefaultLoggerWrappers(t *testing.T) {
	old := GetDefaultLogger()
	t.Cleanup(func() {
		SetDefaultLogger(old)
	})

	var buf bytes.Buffer
	SetDefaultLogger(InitLogger(LoggerOptions{
		Level:  "debug",
		Output: &buf,
		Prefix: "wrapper",
	}))

	Debug("debug-msg")
	Info("info-msg")
	Warn("warn-msg")
	Error("error-msg")
	_ = With("k", "v")
	_ = WithPrefix("p")

	out := buf.String()
	for _, want := range []string{"debug-msg", "info-msg", "warn-msg", "error-msg"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q; got %q", want, out)
		}
	}
}
