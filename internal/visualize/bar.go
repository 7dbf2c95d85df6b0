package visualize

import (
	"math"
	"strings"
)

var barSymbols = []string{"▏", "▎", "▍", "▌", "▋", "▊", "▉", "█"}

const barSymbolFull = "█"

// MakeBar renders value as a horizontal bar: one full block per unit and
// an eighth block for the remaining fraction.
func MakeBar(value float64) string {
	if value < 0 {
		return "-" + MakeBar(-value)
	}
	whole := math.Floor(value)
	fraction := value - whole
	last := ""
	if fraction != 0 {
		last = barSymbols[int(math.RoundToEven(fraction*float64(len(barSymbols)-1)))]
	}
	return strings.Repeat(barSymbolFull, int(whole)) + last
}
