package tool

import (
	"strings"
	"unicode/utf8"
)

// Output limits applied to native tool results before they reach the model.
const (
	// MaxResultLines caps the number of lines in a tool result.
	MaxResultLines = 2000
	// MaxResultBytes caps the byte size of a tool result.
	MaxResultBytes = 50 * 1024
	// MaxGrepLineLength caps individual matched lines in grep output.
	MaxGrepLineLength = 500

	truncationSuffix = "... [truncated]"
)

// Truncate applies head truncation to s, keeping at most maxLines lines and
// maxBytes bytes. Truncated output ends with a marker so the model knows the
// result is partial.
func Truncate(s string, maxLines, maxBytes int) string {
	truncated := false

	if maxLines > 0 {
		lines := strings.Split(s, "\n")
		if len(lines) > maxLines {
			s = strings.Join(lines[:maxLines], "\n")
			truncated = true
		}
	}

	if maxBytes > 0 && len(s) > maxBytes {
		s = trimToRuneBoundary(s, maxBytes)
		// Avoid splitting a line mid-way when possible.
		if idx := strings.LastIndexByte(s, '\n'); idx > 0 {
			s = s[:idx]
		}
		truncated = true
	}

	if truncated {
		return s + "\n" + truncationSuffix
	}
	return s
}

// TruncateResult applies the default result limits.
func TruncateResult(s string) string {
	return Truncate(s, MaxResultLines, MaxResultBytes)
}

// TruncateLine caps a single line at max bytes, marking the cut.
func TruncateLine(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return trimToRuneBoundary(s, max) + truncationSuffix
}

// trimToRuneBoundary cuts s to at most max bytes, backing up so a multi-byte
// UTF-8 rune is never split.
func trimToRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
