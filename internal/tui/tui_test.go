package tui

import (
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func makeLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %02d", i)
	}
	return lines
}

func sized(t *testing.T, m Model, w, h int) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return updated.(Model)
}

func press(m Model, key tea.KeyMsg) Model {
	updated, _ := m.Update(key)
	return updated.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelView_NotReady(t *testing.T) {
	m := New(makeLines(3), Options{Title: "Report"})
	if got := m.View(); got != "Loading..." {
		t.Fatalf("View()=%q want Loading...", got)
	}
}

func TestModelUpdate_StoresSize(t *testing.T) {
	m := sized(t, New(makeLines(3), Options{}), 80, 24)
	if m.width != 80 || m.height != 24 {
		t.Errorf("expected dimensions 80x24, got %dx%d", m.width, m.height)
	}
	if m.pageSize() != 22 {
		t.Errorf("pageSize=%d want 22", m.pageSize())
	}
}

func TestScrolling(t *testing.T) {
	m := sized(t, New(makeLines(30), Options{}), 40, 12) // 10 lines per page

	m = press(m, tea.KeyMsg{Type: tea.KeyDown})
	if m.offset != 1 {
		t.Fatalf("down: offset=%d want 1", m.offset)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	m = press(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.offset != 0 {
		t.Fatalf("up past top: offset=%d want 0", m.offset)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	if m.offset != 10 {
		t.Fatalf("pgdown: offset=%d want 10", m.offset)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	if m.offset != 20 {
		t.Fatalf("pgdown past end: offset=%d want 20", m.offset)
	}
	m = press(m, runes("g"))
	if m.offset != 0 {
		t.Fatalf("home: offset=%d want 0", m.offset)
	}
	m = press(m, runes("G"))
	if m.offset != 20 {
		t.Fatalf("end: offset=%d want 20", m.offset)
	}
}

func TestStartAtEnd(t *testing.T) {
	m := sized(t, New(makeLines(30), Options{StartAtEnd: true}), 40, 12)
	if m.offset != 20 {
		t.Fatalf("offset=%d want 20", m.offset)
	}
	view := m.View()
	if !strings.Contains(view, "line 29") || strings.Contains(view, "line 19\n") {
		t.Fatalf("unexpected view:\n%s", view)
	}
	if !strings.Contains(view, "lines 21-30 of 30") {
		t.Fatalf("missing status line:\n%s", view)
	}
}

func TestShortContentDoesNotScroll(t *testing.T) {
	m := sized(t, New(makeLines(3), Options{}), 40, 12)
	m = press(m, tea.KeyMsg{Type: tea.KeyPgDown})
	if m.offset != 0 {
		t.Fatalf("offset=%d want 0", m.offset)
	}
	if got := strings.Count(m.View(), "\n"); got != 11 {
		t.Fatalf("view has %d newlines, want 11", got)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		_, cmd := New(nil, Options{}).Update(key)
		if cmd == nil {
			t.Fatalf("%s: expected quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s: expected tea.QuitMsg", key)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("truncate=%q want abc", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("truncate with no width=%q", got)
	}
}
