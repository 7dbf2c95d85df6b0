package testutil

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

// TestLogger returns a debug logger prefixed with the test name. Output
// goes to stderr under `go test -v` and is dropped otherwise.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()
	var out io.Writer = io.Discard
	if testing.Verbose() {
		out = os.Stderr
	}
	return newTestLogger(t, out)
}

// LogBuffer collects log output for assertions. It is safe for use by
// watcher and collector goroutines.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything logged so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Contains reports whether any logged line contains s.
func (b *LogBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// CaptureLogger returns a debug logger writing plain text into a LogBuffer.
func CaptureLogger(t *testing.T) (*log.Logger, *LogBuffer) {
	t.Helper()
	buf := &LogBuffer{}
	return newTestLogger(t, buf), buf
}

func newTestLogger(t *testing.T, out io.Writer) *log.Logger {
	return log.NewWithOptions(out, log.Options{
		Level:  log.DebugLevel,
		Prefix: t.Name(),
	})
}
