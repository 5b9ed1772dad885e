package flatten

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins the segments of a nested property path.
const Separator = "__"

// NormalizeName converts a property name into a lowercase ASCII identifier:
//  1. camelCase boundaries become underscores (userId -> user_id)
//  2. lowercase
//  3. strip accents (NFD -> remove Mn -> NFC)
//  4. anything outside [a-z0-9_] becomes an underscore
//
// Existing underscores are kept as they are, so a name that is already
// normalized maps to itself.
func NormalizeName(s string) string {
	s = strings.ToLower(splitCamel(strings.TrimSpace(s)))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "col"
	}
	return b.String()
}

// splitCamel inserts an underscore at lower->upper boundaries and before the
// last capital of an acronym that starts a new word (HTTPServer -> HTTP_Server).
func splitCamel(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// JoinPath builds the flat column name for a nested property path.
func JoinPath(path ...string) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = NormalizeName(p)
	}
	return strings.Join(parts, Separator)
}

// Key flattens a declared key property name into its column name.
func Key(name string) string { return NormalizeName(name) }

// TableName derives the warehouse table name of a stream.
func TableName(stream string) string {
	return strings.ToUpper(NormalizeName(stream))
}
