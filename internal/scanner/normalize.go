// Package scanner matches instrument identifiers inside the semicolon
// separated CSV files that make up a CDA archive and collects the taxpayer
// IDs of the funds holding them.
package scanner

import (
	"regexp"
	"strings"
)

var (
	alnumOnly   = regexp.MustCompile(`[^A-Z0-9]+`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)
	nonDigit    = regexp.MustCompile(`\D+`)
	headerJunk  = strings.NewReplacer("\ufeff", "", "\r", "", "\n", "")
)

// NormalizeHeader canonicalizes a CSV column name: uppercased, trimmed, with
// BOM and stray line-break characters removed. The portal's files are not
// consistent about any of these.
func NormalizeHeader(col string) string {
	return strings.TrimSpace(strings.ToUpper(headerJunk.Replace(col)))
}

// NormalizeCode canonicalizes an ISIN or asset code: uppercase, keeping only
// letters and digits. "brbk md-bs0a1" and "BRBKMDBS0A1" compare equal.
func NormalizeCode(s string) string {
	return alnumOnly.ReplaceAllString(strings.ToUpper(s), "")
}

// NormalizeDescription canonicalizes an asset description for exact
// comparison: uppercase, punctuation mapped to spaces, runs of whitespace
// collapsed to single spaces, trimmed.
func NormalizeDescription(s string) string {
	s = strings.ToUpper(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeCNPJ reduces a taxpayer ID to its digits. Formatting varies
// between files (punctuated, padded, numeric with lost leading zeros), so
// only the digit sequence is comparable.
func NormalizeCNPJ(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// validCNPJ reports whether a raw cell holds a usable taxpayer ID. Empty
// cells and the literal "NAN" (how missing values arrive in some exports)
// are rejected.
func validCNPJ(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "NAN") {
		return false
	}
	return NormalizeCNPJ(trimmed) != ""
}
