// Package util holds small helpers shared across packages.
package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen caps payloads echoed into logs (1KB).
const DefaultLogMaxLen = 1024

// TruncateLog cuts s to at most maxLen bytes, backing off to a rune boundary,
// and notes the original size. Mail subjects and snippets are often non-ASCII.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for []byte with DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}
