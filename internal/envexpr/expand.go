// Package envexpr substitutes ${env.NAME} references in configuration text.
package envexpr

import (
	"os"
	"strings"
	"unicode"
)

const prefix = "${env."

// Expand replaces every ${env.NAME} with the value of NAME, or "" when unset.
// A reference whose name is not made of letters, digits and '_' is kept
// literally; scanning resumes right after its prefix.
func Expand(text string) string {
	return ExpandWith(text, os.Getenv)
}

// ExpandWith is Expand with a custom lookup.
func ExpandWith(text string, lookup func(string) string) string {
	if !strings.Contains(text, prefix) {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for {
		start := strings.Index(text, prefix)
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		rest := text[start+len(prefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(text[start:])
			break
		}
		name := rest[:end]
		if !isName(name) {
			b.WriteString(prefix)
			text = rest
			continue
		}
		b.WriteString(lookup(name))
		text = rest[end+1:]
	}
	return b.String()
}

func isName(name string) bool {
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
