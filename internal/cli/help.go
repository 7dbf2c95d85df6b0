package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Catppuccin Mocha palette
var (
	colorMauve   = lipgloss.Color("#cba6f7") // title
	colorBlue    = lipgloss.Color("#89b4fa") // section headers
	colorGreen   = lipgloss.Color("#a6e3a1") // commands
	colorYellow  = lipgloss.Color("#f9e2af") // flags
	colorOverlay = lipgloss.Color("#6c7086")
	colorBase    = lipgloss.Color("#1e1e2e")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMauve).
			MarginBottom(1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			MarginTop(1)

	commandStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	flagStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorOverlay)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBlue).
			Background(colorBase).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)
)

func showQuickReference(w io.Writer) {
	width := clampWidth(detectWidth(w))
	useUnicode := supportsUnicode()

	border := lipgloss.RoundedBorder()
	if !useUnicode {
		border = lipgloss.Border{
			Top:         "-",
			Bottom:      "-",
			Left:        "|",
			Right:       "|",
			TopLeft:     "+",
			TopRight:    "+",
			BottomLeft:  "+",
			BottomRight: "+",
		}
	}

	container := boxStyle.Copy().Border(border).Width(width)

	titleText := " METERELF STORE - Water Meter Readings "
	titleRendered := gradientText(titleText, []lipgloss.Color{colorMauve, colorBlue})
	if !useUnicode {
		titleRendered = strings.TrimSpace(titleText)
	}
	title := titleStyle.Copy().Width(width - 4).Align(lipgloss.Center).Render(titleRendered)

	collecting := renderSection(useUnicode, "📥 COLLECTING", []string{
		bullet("meterelf-store collect", "read images not yet in the database"),
		bullet("meterelf-store collect <image>...", "re-read images, replacing their rows"),
		bullet("meterelf-store import", "import legacy values-DD.txt files"),
		bullet("meterelf-store watch --log-file watch.log", "collect images as they appear"),
	})

	reporting := renderSection(useUnicode, "📊 REPORTING", []string{
		bullet("meterelf-store visualize -r hour --amend", "consumption per hour"),
		bullet("meterelf-store visualize -i", "browse the report in a pager"),
		bullet("meterelf-store raw --format influx", "readings as line protocol"),
		bullet("meterelf-store ignores", "see which rows were ignored and why"),
	})

	maintenance := renderSection(useUnicode, "🔧 MAINTENANCE", []string{
		bullet("meterelf-store thousands set 2018-10-01 1", "record the thousands register"),
		bullet("meterelf-store runs -n 5", "recent collection runs"),
		bullet("meterelf-store golden --dir samples --expected samples/run", "check the reader against golden files"),
		bullet("meterelf-store config set reader.params_file params.yml", "edit project config"),
	})

	flags := flagLegend(useUnicode)
	footer := footerLegend(useUnicode)

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		collecting,
		reporting,
		maintenance,
		flags,
		footer,
	)

	fmt.Fprintln(w, container.Render(content))
}

func clampWidth(w int) int {
	if w < 72 {
		return 72
	}
	if w > 100 {
		return 100
	}
	return w
}

func detectWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 80
}

func supportsUnicode() bool {
	termEnv := strings.ToLower(os.Getenv("TERM"))
	locale := strings.ToLower(strings.Join([]string{
		os.Getenv("LC_ALL"),
		os.Getenv("LC_CTYPE"),
		os.Getenv("LANG"),
	}, " "))
	if strings.Contains(termEnv, "dumb") {
		return false
	}
	return strings.Contains(locale, "utf-8") || strings.Contains(locale, "utf8")
}

func gradientText(text string, colors []lipgloss.Color) string {
	if len(colors) == 0 || !supportsUnicode() {
		return text
	}
	runes := []rune(text)
	segments := len(colors)
	if segments == 1 || len(runes) <= 1 {
		return lipgloss.NewStyle().Foreground(colors[0]).Render(text)
	}

	var b strings.Builder
	for i, r := range runes {
		idx := i * (segments - 1) / (len(runes) - 1)
		b.WriteString(lipgloss.NewStyle().Foreground(colors[idx]).Render(string(r)))
	}
	return b.String()
}

func bullet(command, desc string) string {
	return commandStyle.Render("  "+command) + mutedStyle.Render("  "+desc)
}

func renderSection(useUnicode bool, title string, lines []string) string {
	if !useUnicode {
		// icons are one rune plus a space
		if _, rest, ok := strings.Cut(title, " "); ok {
			title = rest
		}
	}
	header := sectionStyle.Render(title)
	body := strings.Join(lines, "\n")
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

func flagLegend(useUnicode bool) string {
	prefix := "🚩 GLOBAL FLAGS"
	if !useUnicode {
		prefix = "FLAGS"
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		sectionStyle.Render(prefix),
		flagStyle.Render("  -j, --json")+mutedStyle.Render("               structured output"),
		flagStyle.Render("  -C, --project <dir>")+mutedStyle.Render("      run in another project"),
		flagStyle.Render("  -p, --params <file>")+mutedStyle.Render("      meter reader parameters"),
		flagStyle.Render("  --images-dir <dir>")+mutedStyle.Render("       image tree root"),
		flagStyle.Render("  --db <path>")+mutedStyle.Render("              value database"),
	)
}

func footerLegend(useUnicode bool) string {
	config := "meterelf-store config"
	help := "meterelf-store <command> --help"
	if !useUnicode {
		return mutedStyle.Render("CONFIG: " + config + "   HELP: " + help)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left,
		mutedStyle.Render("CONFIG: "), commandStyle.Render(config),
		mutedStyle.Render("   HELP: "), commandStyle.Render(help),
	)
}
