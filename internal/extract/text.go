package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanText NFC-normalizes s and collapses runs of whitespace, including
// non-breaking spaces, into single spaces.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\u200b'
}

// containsAll reports whether s contains every marker
func containsAll(s string, markers []string) bool {
	for _, m := range markers {
		if !strings.Contains(s, m) {
			return false
		}
	}
	return true
}

// containsAny reports whether s contains at least one marker
func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
