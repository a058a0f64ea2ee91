package strutil

import (
	"strings"
	"unicode/utf8"
)

// CleanList returns a de-duplicated list of trimmed, non-empty strings.
func CleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// SplitLines splits text on LF or CRLF. A trailing newline does not yield an
// extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Truncate shortens value to at most n bytes, marking the cut with "...".
// The cut never splits a multi-byte rune.
func Truncate(value string, n int) string {
	if n <= 3 || len(value) <= n {
		return value
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}
