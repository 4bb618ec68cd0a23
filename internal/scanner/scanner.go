package scanner

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cdacli/pkg/contracts/domain"
)

// FileOpener provides read access to one member file of an archive. Each
// call returns an independent reader positioned at the start of the file.
type FileOpener interface {
	Open(name string) (io.ReadCloser, error)
}

// Term is a search term prepared for matching: the raw input normalized
// once, up front, the same way the candidate cells will be.
type Term struct {
	Mode domain.MatchMode
	code string
	desc string
}

// NewTerm prepares a term for the given match mode.
func NewTerm(raw string, mode domain.MatchMode) Term {
	return Term{
		Mode: mode,
		code: NormalizeCode(raw),
		desc: NormalizeDescription(raw),
	}
}

// matches reports whether one data row holds the instrument.
func (t Term) matches(h header, record []string) bool {
	switch t.Mode {
	case domain.MatchByDescription:
		if h.descIdx < 0 || h.descIdx >= len(record) {
			return false
		}
		return NormalizeDescription(record[h.descIdx]) == t.desc
	case domain.MatchByCode:
		return t.matchesAny(h.codeIdx, record)
	default:
		return t.matchesAny(h.isinIdx, record)
	}
}

func (t Term) matchesAny(idx []int, record []string) bool {
	if t.code == "" {
		return false
	}
	for _, i := range idx {
		if i < len(record) && NormalizeCode(record[i]) == t.code {
			return true
		}
	}
	return false
}

// Result is the outcome of scanning one CSV file.
type Result struct {
	Filename string
	CNPJs    map[string]struct{}
	Found    bool
	Err      error
}

// Scanner scans individual CSV files for a prepared term. It is stateless
// and safe for concurrent use.
type Scanner struct {
	maxFieldBytes int
	logger        *slog.Logger
}

// New creates a scanner. maxFieldBytes bounds line length in the fallback
// parser; some position files carry very long free-text fields.
func New(maxFieldBytes int, logger *slog.Logger) *Scanner {
	if maxFieldBytes <= 0 {
		maxFieldBytes = 10_000_000
	}
	return &Scanner{
		maxFieldBytes: maxFieldBytes,
		logger:        logger.With(slog.String("component", "scanner")),
	}
}

// ScanFile scans one file for the term. The structured CSV parser runs
// first; if it rejects the file, a permissive line-based fallback re-reads
// it from the start. Only when both parsers fail does the file count as an
// error. A file without a recognizable CNPJ column is skipped silently.
func (s *Scanner) ScanFile(ctx context.Context, src FileOpener, name string, term Term) Result {
	result, err := s.scanStructured(ctx, src, name, term)
	if err == nil {
		return result
	}

	s.logger.DebugContext(ctx, "structured parse failed, using fallback",
		slog.String("file", name),
		slog.String("error", err.Error()))

	result, fbErr := s.scanFallback(ctx, src, name, term)
	if fbErr != nil {
		return Result{Filename: name, Err: fmt.Errorf("%w (fallback: %v)", err, fbErr)}
	}
	return result
}

func (s *Scanner) scanStructured(ctx context.Context, src FileOpener, name string, term Term) (Result, error) {
	rc, err := src.Open(name)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	// Strict parse first. Quoting errors are common enough in the portal's
	// files that a permissive fallback exists, but the strict parser is the
	// fast path and catches silent field-count drift.
	r := csv.NewReader(rc)
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	headerRow, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{Filename: name}, nil
		}
		return Result{}, err
	}
	h := newHeader(headerRow)
	if h.cnpjIdx < 0 {
		return Result{Filename: name}, nil
	}

	cnpjs := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
		collect(h, record, term, cnpjs)
	}

	return Result{Filename: name, CNPJs: cnpjs, Found: len(cnpjs) > 0}, nil
}

// scanFallback re-reads the file line by line with a permissive
// semicolon tokenizer. Rows that cannot be split cleanly are skipped rather
// than failing the file.
func (s *Scanner) scanFallback(ctx context.Context, src FileOpener, name string, term Term) (Result, error) {
	rc, err := src.Open(name)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), s.maxFieldBytes)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Result{}, err
		}
		return Result{Filename: name}, nil
	}
	h := newHeader(splitSemicolon(sc.Text()))
	if h.cnpjIdx < 0 {
		return Result{Filename: name}, nil
	}

	cnpjs := make(map[string]struct{})
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		collect(h, splitSemicolon(line), term, cnpjs)
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}

	return Result{Filename: name, CNPJs: cnpjs, Found: len(cnpjs) > 0}, nil
}

func collect(h header, record []string, term Term, cnpjs map[string]struct{}) {
	if !term.matches(h, record) {
		return
	}
	if h.cnpjIdx >= len(record) {
		return
	}
	raw := record[h.cnpjIdx]
	if !validCNPJ(raw) {
		return
	}
	cnpjs[NormalizeCNPJ(raw)] = struct{}{}
}

// splitSemicolon splits one CSV line on semicolons outside double quotes.
// Doubled quotes inside a quoted field unescape to a single quote. Unlike
// the structured parser it never rejects a line.
func splitSemicolon(line string) []string {
	var (
		fields  []string
		field   strings.Builder
		inQuote bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuote && i+1 < len(line) && line[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			inQuote = !inQuote
		case c == ';' && !inQuote:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteByte(c)
		}
	}
	fields = append(fields, field.String())
	return fields
}
