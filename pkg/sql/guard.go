// Package sql guards caller-supplied fragments before they reach repository
// SQL: table/column identifiers that get interpolated into statements, and
// free-text search terms destined for ILIKE patterns.
package sql

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// Postgres identifier limit.
const maxIdentifierLength = 63

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateIdentifier rejects anything that is not a plain unquoted SQL
// identifier. Repositories interpolate validated identifiers directly; all
// values still travel as bind parameters.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// InjectionCheckResult describes a detected SQL injection pattern.
type InjectionCheckResult struct {
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string // the value that was checked
}

// CheckSearchTerm runs libinjection over a free-text search term. Returns
// nil when the term is clean.
func CheckSearchTerm(term string) *InjectionCheckResult {
	if term == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(term)
	if isSQLi {
		return &InjectionCheckResult{Fingerprint: string(fingerprint), Value: term}
	}
	return nil
}
