package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldKey normalises product codes and size labels for case-insensitive matching.
func FoldKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return cases.Fold().String(trimmed)
}

// SameKey reports whether a and b match after folding.
func SameKey(a, b string) bool {
	return FoldKey(a) == FoldKey(b)
}
