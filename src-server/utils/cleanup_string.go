package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CleanupString normalizes free-text anchor input ("next monday.")
// before it reaches the natural-language date parser: trims
// whitespace, drops a trailing period, title-cases the words.
func CleanupString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	return cases.Title(language.English).String(s)
}
