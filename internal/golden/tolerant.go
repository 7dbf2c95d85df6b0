package golden

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Precisions are the value differences checked by tolerant comparison,
// coarsest first.
var Precisions = []float64{1000, 0.5, 0.1, 0.05, 0.04, 0.03, 0.02, 0.01, 0.005}

// AllowedInaccuracy is the precision below which differences are accepted.
const AllowedInaccuracy = 0.0

// dialWrap is the difference treated as the dial going around once.
const dialWrap = 900.0

type valueLine struct {
	name  string
	value string
	ok    bool
}

func splitValueLines(data []byte) []valueLine {
	var lines []valueLine
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), ": ")
		lines = append(lines, valueLine{name: name, value: value, ok: ok})
	}
	return lines
}

func toFloat(s string, ok bool) (float64, bool) {
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// CompareTolerant compares `<image>: <value>` lines of got against want.
// Numeric values may differ by less than the finest precision; a
// difference beyond 900 counts as a dial wrap. It returns one line per
// failure and a "Failed N of M files" summary, or nil when all match.
func CompareTolerant(want, got []byte) []string {
	result := splitValueLines(got)
	expected := splitValueLines(want)

	values := make(map[string]valueLine, len(result))
	for _, l := range result {
		values[l.name] = l
	}

	var diffs []string
	seen := make(map[string]bool)
	failed := make(map[string]bool)
	for _, precision := range Precisions {
		for _, exp := range expected {
			gotLine, found := values[exp.name]
			gotText := "<missing>"
			if found {
				gotText = gotLine.value
			}
			gotF, gotNum := toFloat(gotLine.value, found && gotLine.ok)
			expF, expNum := toFloat(exp.value, exp.ok)

			line := ""
			if !gotNum || !expNum {
				if !found || gotLine.value != exp.value {
					line = fmt.Sprintf("%-45s: got: %s | expected: %s", exp.name, gotText, exp.value)
				}
			} else {
				diff := gotF - expF
				switch {
				case diff > dialWrap:
					diff -= 1000
				case diff < -dialWrap:
					diff += 1000
				}
				if math.Abs(diff) >= precision && precision > AllowedInaccuracy {
					line = fmt.Sprintf("%-42s %8.2f (got: %s | expected: %s)", exp.name, diff, gotLine.value, exp.value)
				}
			}
			if line != "" && !seen[line] {
				seen[line] = true
				failed[exp.name] = true
				diffs = append(diffs, line)
			}
		}
	}
	if len(diffs) > 0 {
		diffs = append(diffs, fmt.Sprintf("Failed %d of %d files", len(failed), len(result)))
	}
	return diffs
}
