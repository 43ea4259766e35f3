// Package slug derives URL-safe public identifiers for published forms.
package slug

import (
	"regexp"
	"strings"
)

var reNoIdent = regexp.MustCompile(`[^a-z0-9]+`)

// Make lowercases the input and collapses every run of non-alphanumeric
// characters into a single dash. An input with no usable characters
// falls back to "form".
func Make(s string) string {
	s = strings.ToLower(s)
	s = reNoIdent.ReplaceAllLiteralString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "form"
	}
	return s
}
