// Package utils holds small helpers shared by the meterelf-store packages:
// logging setup, block processing and terminal text cleanup.
package utils

import (
	"regexp"
	"strings"
)

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences, e.g. colored reader output.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// StripANSIBytes is StripANSI for captured process output.
func StripANSIBytes(b []byte) []byte {
	return ansiRegex.ReplaceAll(b, nil)
}

// SanitizeInput drops escape sequences and control characters other than
// newline and tab.
func SanitizeInput(s string) string {
	s = StripANSI(s)
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
}
