package visualize

import (
	"fmt"
	"io"

	"github.com/meterelf/meterelf-store/internal/process"
)

// IgnoreLines lists every row with its status: "OK" for accepted, "c " for
// corrected and blank for ignored rows. The last accepted value is carried
// along and marked with "*" on rows that were not accepted.
func IgnoreLines(rows []process.InterpretedRow, style *Style) []string {
	lines := make([]string, 0, len(rows))
	last := 0.0
	for _, r := range rows {
		status := "  "
		suffix := ""
		mark := "*"
		if v := r.Value; v != nil {
			mark = " "
			last = v.FV
			if v.Correction != 0 {
				status = "c "
				suffix = fmt.Sprintf(" Correction: %.3f %s", v.Correction, v.CorrectionReason)
			} else {
				status = "OK"
			}
		} else {
			suffix = " " + r.Ignore
		}
		reading := ""
		if r.Row.Reading != nil {
			reading = fmt.Sprintf("%07.3f", *r.Row.Reading)
		}
		lines = append(lines, fmt.Sprintf("%s %-40s %-7s  | %10.3f%s | %s%s",
			style.RenderStatus(status), r.Row.Filename, reading, last, mark, r.Row.Error, suffix))
	}
	return lines
}

// WriteIgnores writes the ignores listing to w.
func WriteIgnores(w io.Writer, rows []process.InterpretedRow, style *Style) error {
	for _, line := range IgnoreLines(rows, style) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
