// Package textx provides small text utilities used across the project.
package textx

import "strings"

// Sanitize strips control characters (except tab, newline and carriage
// return) from user-supplied text and trims surrounding whitespace. Prompts
// and project names pass through here before validation so that a string of
// NUL bytes does not count as content.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
