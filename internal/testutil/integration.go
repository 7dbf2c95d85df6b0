package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/meterelf/meterelf-store/internal/db"
)

// Harness is a lightweight integration test environment.
//
// It provisions a temp project directory with a `.meterelf/values.db`, an
// images tree and a params file, keeping cleanup automatic via t.Cleanup.
type Harness struct {
	T          *testing.T
	ProjectDir string
	StateDir   string
	ImagesDir  string
	ParamsFile string
	DBPath     string
	DB         *db.DB
}

func NewHarness(t *testing.T) *Harness {
	t.Helper()

	projectDir := t.TempDir()
	stateDir := filepath.Join(projectDir, ".meterelf")
	if err := os.MkdirAll(stateDir, 0750); err != nil {
		t.Fatalf("NewHarness: mkdir .meterelf: %v", err)
	}
	imagesDir := filepath.Join(projectDir, "images")
	if err := os.MkdirAll(imagesDir, 0750); err != nil {
		t.Fatalf("NewHarness: mkdir images: %v", err)
	}
	paramsFile := filepath.Join(projectDir, "params.yml")
	if err := os.WriteFile(paramsFile, []byte("dial_center: [10, 10]\n"), 0600); err != nil {
		t.Fatalf("NewHarness: write params: %v", err)
	}

	dbPath := filepath.Join(stateDir, "values.db")
	database := NewTestDBAtPath(t, dbPath)

	return &Harness{
		T:          t,
		ProjectDir: projectDir,
		StateDir:   stateDir,
		ImagesDir:  imagesDir,
		ParamsFile: paramsFile,
		DBPath:     dbPath,
		DB:         database,
	}
}

// MustPath joins ProjectDir with parts, failing the test on error.
func (h *Harness) MustPath(parts ...string) string {
	h.T.Helper()
	if h == nil || h.ProjectDir == "" {
		h.T.Fatalf("Harness.MustPath: harness not initialized")
	}
	all := append([]string{h.ProjectDir}, parts...)
	return filepath.Join(all...)
}

// WriteFile writes a file relative to the project directory.
func (h *Harness) WriteFile(rel string, data []byte, perm os.FileMode) string {
	h.T.Helper()
	if strings.TrimSpace(rel) == "" {
		h.T.Fatalf("Harness.WriteFile: rel path is required")
	}
	abs := h.MustPath(rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0750); err != nil {
		h.T.Fatalf("Harness.WriteFile: mkdir: %v", err)
	}
	if err := os.WriteFile(abs, data, perm); err != nil {
		h.T.Fatalf("Harness.WriteFile: write: %v", err)
	}
	return abs
}

// AddImage creates an empty camera image in the images tree and returns
// its path.
func (h *Harness) AddImage(t time.Time, seq int) string {
	h.T.Helper()
	path := ImagePath(h.ImagesDir, t, seq)
	rel, err := filepath.Rel(h.ProjectDir, path)
	if err != nil {
		h.T.Fatalf("Harness.AddImage: %v", err)
	}
	return h.WriteFile(rel, []byte("jpeg"), 0600)
}

func (h *Harness) String() string {
	if h == nil {
		return "Harness<nil>"
	}
	return fmt.Sprintf("Harness(project=%s, db=%s)", h.ProjectDir, h.DBPath)
}
