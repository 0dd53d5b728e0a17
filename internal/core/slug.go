package core

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// IsSlug reports whether s contains only lowercase letters, digits or dashes.
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// FormatID converts a display name into a url-safe id, e.g.
// "Alfa Romeo" -> "alfa-romeo" and "Citroën C4" -> "citroen-c4".
//
// Letters are lower-cased and stripped of diacritics; every run of other
// characters collapses to one dash and edge dashes are removed. The result
// is empty when name holds no letters or digits, and callers must treat
// that as "cannot form an id".
func FormatID(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))

	// Decompose, drop combining marks, recompose. The transformer is
	// stateful so one is built per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}
