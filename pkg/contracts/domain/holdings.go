package domain

import (
	"strings"
	"unicode"
)

// Category identifies the kind of instrument being searched.
type Category string

const (
	// CategoryCreditoPrivado covers bond-like private credit instruments,
	// identified by ISIN.
	CategoryCreditoPrivado Category = "CREDITO_PRIVADO"
	// CategoryCDB covers certificates of deposit, identified either by the
	// short asset code or by the full description text.
	CategoryCDB Category = "CDB"
)

// Valid reports whether the category is one of the supported values.
func (c Category) Valid() bool {
	return c == CategoryCreditoPrivado || c == CategoryCDB
}

// MatchMode is the matching strategy applied to each record file.
type MatchMode string

const (
	MatchByISIN        MatchMode = "ISIN"
	MatchByCode        MatchMode = "CDB_CODIGO"
	MatchByDescription MatchMode = "CDB_DESCR_EXATA"
)

// DeriveMatchMode computes the match mode from the category and the shape of
// the raw term. CDB terms containing whitespace are treated as full
// descriptions; otherwise the term is an asset code. The mode is derived once
// and never changes during a search.
func DeriveMatchMode(term string, category Category) MatchMode {
	if category == CategoryCDB {
		if strings.ContainsFunc(term, unicode.IsSpace) {
			return MatchByDescription
		}
		return MatchByCode
	}
	return MatchByISIN
}

// SearchRequest carries the inputs of one holdings search.
type SearchRequest struct {
	Term     string   `json:"ativo"`
	Category Category `json:"categoria"`
	Workers  int      `json:"workers"`
	Periods  int      `json:"meses"`
}

// FileMatch records one archive entry where at least one row matched.
type FileMatch struct {
	Period   string `json:"yyyymm"`
	Filename string `json:"arquivo"`
}

// FileError records one archive entry that could not be scanned.
type FileError struct {
	Period   string `json:"yyyymm"`
	Filename string `json:"arquivo"`
	Message  string `json:"erro"`
}

// SearchResult is the final merged output of a multi-period search.
// CNPJs is deduplicated and sorted ascending; Matches and Errors are sorted
// by period (most recent first) then filename; MatchPeriods is sorted
// descending and contains only periods that produced at least one match.
type SearchResult struct {
	LastPeriod   string      `json:"last_period"`
	CNPJs        []string    `json:"cnpjs"`
	Matches      []FileMatch `json:"matches"`
	Errors       []FileError `json:"errors"`
	MatchPeriods []string    `json:"match_periods"`
}
