package handoff

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9 -]`)
	slugWhitespace = regexp.MustCompile(`\s+`)
)

const slugMaxLen = 50

// Slug normalizes a goal string: lowercase, strip anything outside
// [a-z0-9 -], trim, collapse runs of whitespace to a single '-', and
// truncate to at most 50 characters. Empty and all-special-character inputs
// yield "".
func Slug(goal string) string {
	s := strings.ToLower(goal)
	s = slugDisallowed.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = slugWhitespace.ReplaceAllString(s, "-")
	if len(s) > slugMaxLen {
		s = s[:slugMaxLen]
	}
	return s
}
