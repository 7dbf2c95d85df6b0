package visualize

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/meterelf/meterelf-store/internal/tui/theme"
)

// Style colors report output for terminals. A nil *Style renders plain text.
type Style struct {
	bar      lipgloss.Style
	negative lipgloss.Style
	status   func(string) lipgloss.Style
}

// NewStyle returns a Style using the colors of t.
func NewStyle(t *theme.Theme) *Style {
	if t == nil {
		t = theme.Current
	}
	return &Style{
		bar:      lipgloss.NewStyle().Foreground(t.Blue),
		negative: lipgloss.NewStyle().Foreground(t.Red),
		status: func(s string) lipgloss.Style {
			return lipgloss.NewStyle().Foreground(t.StatusColor(s)).Bold(true)
		},
	}
}

// RenderBar colors a bar made by MakeBar.
func (s *Style) RenderBar(bar string) string {
	if s == nil || bar == "" {
		return bar
	}
	if strings.HasPrefix(bar, "-") {
		return s.negative.Render(bar)
	}
	return s.bar.Render(bar)
}

// RenderStatus colors a status column of the ignores listing.
func (s *Style) RenderStatus(status string) string {
	if s == nil {
		return status
	}
	return s.status(status).Render(status)
}
