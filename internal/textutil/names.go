package textutil

import (
	"strings"
	"unicode"
)

const maxFileNameRunes = 120

// SanitizeFileName turns a recording name into a safe attachment file name.
// Path separators and characters reserved on common filesystems become
// dashes, control characters are dropped and whitespace runs collapse to one
// space. Leading dots are trimmed so the result is never hidden. An empty
// result falls back to "recording".
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	space := false
	for _, r := range name {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			space = true
			continue
		case strings.ContainsRune(`/\:*|`, r):
			r = '-'
		case strings.ContainsRune(`?"<>`, r):
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := strings.TrimLeft(b.String(), ". ")
	if runes := []rune(out); len(runes) > maxFileNameRunes {
		out = strings.TrimSpace(string(runes[:maxFileNameRunes]))
	}
	if out == "" {
		return "recording"
	}
	return out
}
