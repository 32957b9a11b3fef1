package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName returns the NFC form of a display name with surrounding
// whitespace removed. Names typed in the UI and names imported from CSV must
// compare equal when they render the same.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
