// Package normalize canonicalizes raw geographical-state strings before
// catalogue lookup and fuzzy matching. Stored raw values are never mutated;
// normalization applies only to in-memory comparison forms.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison form of a raw state string: Unicode NFKC,
// lowercase, trimmed, internal whitespace collapsed to a single space, and
// trailing punctuation stripped.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsPunct(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

// abbreviations maps well-known short forms to the normalized long form.
// Used for alias lookup only.
var abbreviations = map[string]string{
	"ap": "andhra pradesh",
	"ar": "arunachal pradesh",
	"as": "assam",
	"br": "bihar",
	"cg": "chhattisgarh",
	"dl": "delhi",
	"ga": "goa",
	"gj": "gujarat",
	"hp": "himachal pradesh",
	"hr": "haryana",
	"jh": "jharkhand",
	"jk": "jammu and kashmir",
	"ka": "karnataka",
	"kl": "kerala",
	"mh": "maharashtra",
	"ml": "meghalaya",
	"mn": "manipur",
	"mp": "madhya pradesh",
	"mz": "mizoram",
	"nl": "nagaland",
	"od": "odisha",
	"pb": "punjab",
	"rj": "rajasthan",
	"sk": "sikkim",
	"tn": "tamil nadu",
	"tr": "tripura",
	"ts": "telangana",
	"uk": "uttarakhand",
	"up": "uttar pradesh",
	"wb": "west bengal",
}

// ExpandAbbreviation resolves a normalized short form (e.g. a two-letter
// state code) to its normalized long form. Reports false when the input is
// not a known abbreviation.
func ExpandAbbreviation(s string) (string, bool) {
	long, ok := abbreviations[s]
	return long, ok
}
