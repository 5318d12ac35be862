// Package normalize canonicalizes ingredient identifiers.
//
// Key is used for every store lookup and every deduplication. It never
// alters the display name stored in a record.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// Key returns the lookup key for a raw ingredient name: surrounding whitespace
// trimmed, inner whitespace runs collapsed to one space, NFKC-normalized and
// lowercased. Key is idempotent.
func Key(raw string) string {
	s := Display(raw)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = lower.String(s)
	// NFKC can map compatibility spaces to U+0020; collapse again.
	return strings.Join(strings.Fields(s), " ")
}

// Display trims and collapses whitespace without changing case.
func Display(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
