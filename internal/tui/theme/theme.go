// Package theme provides the Catppuccin colors used by reports and the pager.
package theme

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines a color scheme.
type Theme struct {
	Mauve  lipgloss.Color // Titles
	Blue   lipgloss.Color // Bars
	Green  lipgloss.Color // Accepted readings
	Yellow lipgloss.Color // Corrected readings
	Red    lipgloss.Color // Ignored readings
	Peach  lipgloss.Color // Long gaps
	Teal   lipgloss.Color // Synthetic values

	Text    lipgloss.Color
	Subtext lipgloss.Color
	Surface lipgloss.Color

	Name   string
	IsDark bool
}

// FlavorName represents a Catppuccin flavor.
type FlavorName string

const (
	FlavorMocha FlavorName = "mocha"
	FlavorLatte FlavorName = "latte"
)

// Current holds the active theme.
var Current = Mocha()

// SetTheme sets the current theme by flavor name. Unknown names select Mocha.
func SetTheme(flavor FlavorName) {
	switch flavor {
	case FlavorLatte:
		Current = Latte()
	default:
		Current = Mocha()
	}
}

// Mocha returns the Catppuccin Mocha theme (dark).
func Mocha() *Theme {
	return &Theme{
		Name:    "Catppuccin Mocha",
		IsDark:  true,
		Mauve:   lipgloss.Color("#cba6f7"),
		Blue:    lipgloss.Color("#89b4fa"),
		Green:   lipgloss.Color("#a6e3a1"),
		Yellow:  lipgloss.Color("#f9e2af"),
		Red:     lipgloss.Color("#f38ba8"),
		Peach:   lipgloss.Color("#fab387"),
		Teal:    lipgloss.Color("#94e2d5"),
		Text:    lipgloss.Color("#cdd6f4"),
		Subtext: lipgloss.Color("#a6adc8"),
		Surface: lipgloss.Color("#313244"),
	}
}

// Latte returns the Catppuccin Latte theme (light).
func Latte() *Theme {
	return &Theme{
		Name:    "Catppuccin Latte",
		Mauve:   lipgloss.Color("#8839ef"),
		Blue:    lipgloss.Color("#1e66f5"),
		Green:   lipgloss.Color("#40a02b"),
		Yellow:  lipgloss.Color("#df8e1d"),
		Red:     lipgloss.Color("#d20f39"),
		Peach:   lipgloss.Color("#fe640b"),
		Teal:    lipgloss.Color("#179299"),
		Text:    lipgloss.Color("#4c4f69"),
		Subtext: lipgloss.Color("#6c6f85"),
		Surface: lipgloss.Color("#ccd0da"),
	}
}

// StatusColor returns the color for a reading status of the ignores
// listing: "OK", "c" (corrected) or anything else (ignored).
func (t *Theme) StatusColor(status string) lipgloss.Color {
	switch status {
	case "OK":
		return t.Green
	case "c", "c ":
		return t.Yellow
	default:
		return t.Red
	}
}
