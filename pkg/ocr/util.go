package ocr

import "strings"

// snippet returns a single-line prefix of s, at most max runes, for logging.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
