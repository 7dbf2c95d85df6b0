// Package tui implements the Bubble Tea pager for consumption reports.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meterelf/meterelf-store/internal/tui/theme"
)

// Options configures the pager.
type Options struct {
	Title string
	Theme string
	// StartAtEnd opens the pager on the newest lines.
	StartAtEnd bool
}

// Model is a scrollable view over pre-rendered report lines.
type Model struct {
	lines   []string
	options Options

	offset int
	width  int
	height int
	ready  bool

	title  lipgloss.Style
	footer lipgloss.Style
}

// New creates a pager over lines.
func New(lines []string, opts Options) Model {
	t := theme.Current
	if opts.Theme != "" {
		theme.SetTheme(theme.FlavorName(opts.Theme))
		t = theme.Current
	}
	return Model{
		lines:   lines,
		options: opts,
		title:   lipgloss.NewStyle().Foreground(t.Mauve).Bold(true),
		footer:  lipgloss.NewStyle().Foreground(t.Subtext),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// pageSize is the number of report lines visible below the title and
// above the footer.
func (m Model) pageSize() int {
	if n := m.height - 2; n > 0 {
		return n
	}
	return 1
}

func (m Model) maxOffset() int {
	if n := len(m.lines) - m.pageSize(); n > 0 {
		return n
	}
	return 0
}

func (m *Model) scroll(delta int) {
	m.offset += delta
	if m.offset > m.maxOffset() {
		m.offset = m.maxOffset()
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		first := !m.ready
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		if first && m.options.StartAtEnd {
			m.offset = m.maxOffset()
		}
		m.scroll(0)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.scroll(-1)
		case "down", "j":
			m.scroll(1)
		case "pgup", "b":
			m.scroll(-m.pageSize())
		case "pgdown", " ", "f":
			m.scroll(m.pageSize())
		case "home", "g":
			m.offset = 0
		case "end", "G":
			m.offset = m.maxOffset()
		}
	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.scroll(-3)
		case tea.MouseButtonWheelDown:
			m.scroll(3)
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.title.Render(m.options.Title))
	b.WriteString("\n")

	end := m.offset + m.pageSize()
	if end > len(m.lines) {
		end = len(m.lines)
	}
	for _, line := range m.lines[m.offset:end] {
		b.WriteString(truncate(line, m.width))
		b.WriteString("\n")
	}
	for i := end - m.offset; i < m.pageSize(); i++ {
		b.WriteString("\n")
	}

	status := fmt.Sprintf("lines %d-%d of %d  ↑/↓ scroll  pgup/pgdn page  q quit",
		min(m.offset+1, len(m.lines)), end, len(m.lines))
	b.WriteString(m.footer.Render(status))
	return b.String()
}

// truncate cuts line to width cells, keeping ANSI styling intact.
func truncate(line string, width int) string {
	if width <= 0 || lipgloss.Width(line) <= width {
		return line
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}

// Run shows lines in the pager until the user quits.
func Run(lines []string, opts Options) error {
	p := tea.NewProgram(New(lines, opts), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}
