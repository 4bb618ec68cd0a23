// Package exporter renders search results as Excel workbooks, the format the
// analysts consuming these lists already work in.
package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"cdacli/pkg/contracts/domain"
)

// Sheet names, in workbook order. The error sheet is only created when there
// is something to report.
const (
	SheetCNPJs   = "CNPJs"
	SheetMatches = "Arquivos_com_match"
	SheetPeriods = "Meses_com_match"
	SheetErrors  = "Erros"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExcelWriter builds result workbooks.
type ExcelWriter struct {
	logger *slog.Logger
}

// NewExcelWriter creates an Excel writer.
func NewExcelWriter(logger *slog.Logger) *ExcelWriter {
	return &ExcelWriter{logger: logger.With(slog.String("component", "excel_writer"))}
}

// Filename builds the suggested workbook filename for a search. Term and
// category are sanitized so the name is safe on every filesystem.
func Filename(term string, category domain.Category, lastPeriod string) string {
	return fmt.Sprintf("resultado_%s_%s_%s.xlsx",
		sanitize(term), sanitize(string(category)), sanitize(lastPeriod))
}

func sanitize(s string) string {
	s = unsafeFilename.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "na"
	}
	return s
}

// Write renders the result as a workbook and streams it to w.
func (e *ExcelWriter) Write(w io.Writer, req domain.SearchRequest, result *domain.SearchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeCNPJs(f, result); err != nil {
		return err
	}
	if err := e.writeMatches(f, result); err != nil {
		return err
	}
	if err := e.writePeriods(f, result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		if err := e.writeErrors(f, result); err != nil {
			return err
		}
	}

	// The default sheet excelize creates is replaced by the first real one.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(SheetCNPJs)
	if err != nil {
		return fmt.Errorf("failed to locate first sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("workbook written",
		slog.String("term", req.Term),
		slog.Int("cnpjs", len(result.CNPJs)),
		slog.Int("matches", len(result.Matches)),
		slog.Int("errors", len(result.Errors)))
	return nil
}

func (e *ExcelWriter) writeCNPJs(f *excelize.File, result *domain.SearchResult) error {
	if _, err := f.NewSheet(SheetCNPJs); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetCNPJs, err)
	}
	if err := f.SetSheetRow(SheetCNPJs, "A1", &[]string{"CNPJ"}); err != nil {
		return err
	}
	for i, cnpj := range result.CNPJs {
		cell := fmt.Sprintf("A%d", i+2)
		// As text: leading zeros in CNPJs must survive Excel.
		if err := f.SetCellStr(SheetCNPJs, cell, cnpj); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExcelWriter) writeMatches(f *excelize.File, result *domain.SearchResult) error {
	if _, err := f.NewSheet(SheetMatches); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetMatches, err)
	}
	if err := f.SetSheetRow(SheetMatches, "A1", &[]string{"YYYYMM", "Arquivo"}); err != nil {
		return err
	}
	for i, m := range result.Matches {
		row := []string{m.Period, m.Filename}
		if err := f.SetSheetRow(SheetMatches, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExcelWriter) writePeriods(f *excelize.File, result *domain.SearchResult) error {
	if _, err := f.NewSheet(SheetPeriods); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetPeriods, err)
	}
	if err := f.SetSheetRow(SheetPeriods, "A1", &[]string{"YYYYMM_com_match"}); err != nil {
		return err
	}
	for i, period := range result.MatchPeriods {
		if err := f.SetCellStr(SheetPeriods, fmt.Sprintf("A%d", i+2), period); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExcelWriter) writeErrors(f *excelize.File, result *domain.SearchResult) error {
	if _, err := f.NewSheet(SheetErrors); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetErrors, err)
	}
	if err := f.SetSheetRow(SheetErrors, "A1", &[]string{"YYYYMM", "Arquivo", "Erro"}); err != nil {
		return err
	}
	for i, fe := range result.Errors {
		row := []string{fe.Period, fe.Filename, fe.Message}
		if err := f.SetSheetRow(SheetErrors, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}
