package runner

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSplitCommand(t *testing.T) {
	t.Setenv("METERELF_TEST_PY", "python3")

	tests := []struct {
		line string
		want []string
	}{
		{"meterelf", []string{"meterelf"}},
		{"python3 -m meterelf", []string{"python3", "-m", "meterelf"}},
		{`"/opt/meter elf/bin/meterelf" --quiet`, []string{"/opt/meter elf/bin/meterelf", "--quiet"}},
		{"$METERELF_TEST_PY -m meterelf", []string{"python3", "-m", "meterelf"}},
	}
	for _, tt := range tests {
		got, err := SplitCommand(tt.line)
		if err != nil {
			t.Fatalf("SplitCommand(%q): %v", tt.line, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("SplitCommand(%q) mismatch (-want +got):\n%s", tt.line, diff)
		}
	}

	if _, err := SplitCommand("   "); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
	if _, err := SplitCommand(`"unterminated`); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestCommandSpec(t *testing.T) {
	spec, err := CommandSpec("python3 -m meterelf", "params.yml", "a.jpg", "b.jpg")
	if err != nil {
		t.Fatalf("CommandSpec: %v", err)
	}
	want := Spec{Name: "python3", Args: []string{"-m", "meterelf", "params.yml", "a.jpg", "b.jpg"}}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Fatalf("CommandSpec mismatch (-want +got):\n%s", diff)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecExecutor_CapturesStreamsAndExitCode(t *testing.T) {
	requireShell(t)

	res, err := ExecExecutor{}.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit=%d want 3", res.ExitCode)
	}
	if string(res.Stdout) != "out\n" || string(res.Stderr) != "err\n" {
		t.Fatalf("stdout=%q stderr=%q", res.Stdout, res.Stderr)
	}
}

func TestExecExecutor_DirAndEnv(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	res, err := ExecExecutor{}.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $METERELF_X"},
		Dir:  dir,
		Env:  []string{"METERELF_X=42"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[0], strings.TrimPrefix(dir, "/private")) || lines[1] != "42" {
		t.Fatalf("unexpected output: %q", res.Stdout)
	}
}

func TestExecExecutor_Timeout(t *testing.T) {
	requireShell(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := ExecExecutor{}.Run(ctx, Spec{Name: "sh", Args: []string{"-c", "sleep 5"}})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if res == nil || !res.TimedOut {
		t.Fatalf("expected TimedOut result, got %+v", res)
	}
}

func TestExecExecutor_MissingBinary(t *testing.T) {
	_, err := ExecExecutor{}.Run(context.Background(), Spec{Name: "definitely-not-a-meterelf-binary"})
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if _, err := (ExecExecutor{}).Run(context.Background(), Spec{}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}
