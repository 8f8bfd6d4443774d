package internal

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail canonicalizes a login identifier so that visually identical
// addresses map to the same principal: NFKC, Unicode case folding, trimmed.
func NormalizeEmail(email string) string {
	s := strings.TrimSpace(email)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	return cases.Fold().String(s)
}
