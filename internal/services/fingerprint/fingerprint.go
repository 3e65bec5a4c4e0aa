package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// Canonicalize lower-cases a field and collapses all interior whitespace runs
// to single spaces. Canonical forms feed the fingerprint and the match keys,
// so the same opening written " Senior  Engineer " and "senior engineer"
// canonicalizes identically.
func Canonicalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Generate derives the content fingerprint of a normalized posting: the hex
// sha256 of the canonical title, company and location joined with a fixed
// separator. The function is deterministic; identical input always yields an
// identical fingerprint, which is what makes re-ingestion idempotent.
func Generate(p *models.NormalizedPosting) string {
	return FromFields(p.Title, p.Company, p.Location)
}

// FromFields fingerprints raw title/company/location values
func FromFields(title, company, location string) string {
	canonical := Canonicalize(title) + "|" + Canonicalize(company) + "|" + Canonicalize(location)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// CompanyKey is the canonical company form used for near-duplicate candidate
// lookup. Company comparison is case-insensitive by contract.
func CompanyKey(company string) string {
	return Canonicalize(company)
}

// LocationKey is the canonical location form used for near-duplicate
// candidate lookup
func LocationKey(location string) string {
	return Canonicalize(location)
}

// TitleTokens splits a title into its unique canonical tokens
func TitleTokens(title string) []string {
	fields := strings.Fields(strings.ToLower(title))
	seen := make(map[string]bool, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenOverlap computes the title similarity ratio between two token sets:
// the number of shared tokens divided by the size of the larger set. Returns
// 0 when either set is empty.
func TokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
		}
	}

	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	return float64(shared) / float64(larger)
}
