// Command searcher runs one holdings search from the command line and writes
// the result workbook next to the working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"cdacli/internal/config"
	"cdacli/internal/cvm"
	"cdacli/internal/exporter"
	"cdacli/internal/infrastructure"
	"cdacli/internal/scanner"
	"cdacli/internal/search"
	"cdacli/pkg/contracts/domain"
)

func main() {
	term := flag.String("ativo", "", "ISIN, asset code or exact description to search for")
	category := flag.String("categoria", "CREDITO_PRIVADO", "instrument category: CREDITO_PRIVADO | CDB")
	workers := flag.Int("workers", 0, "concurrent file scanners (0 = default, capped)")
	periods := flag.Int("meses", 1, "how many recent monthly archives to scan")
	out := flag.String("out", "", "output workbook path (defaults to resultado_<ativo>_<categoria>_<mes>.xlsx)")
	flag.Parse()

	if *term == "" {
		fmt.Fprintln(os.Stderr, "error: -ativo is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	client := cvm.NewClient(cfg.CVM, logger)
	engine := search.NewEngine(client, scanner.New(cfg.Search.MaxFieldBytes, logger), cfg.Search, logger, nil)

	req := domain.SearchRequest{
		Term:     *term,
		Category: domain.Category(*category),
		Workers:  *workers,
		Periods:  *periods,
	}

	ctx := context.Background()
	result, err := engine.Search(ctx, req)
	if err != nil {
		logger.Error("search failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printSummary(req, result)

	path := *out
	if path == "" {
		path = exporter.Filename(req.Term, req.Category, result.LastPeriod)
	}
	if err := writeWorkbook(logger, path, req, result); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nworkbook written to %s\n", path)
}

func printSummary(req domain.SearchRequest, result *domain.SearchResult) {
	fmt.Printf("latest period: %s\n", result.LastPeriod)
	fmt.Printf("distinct CNPJs: %d\n", len(result.CNPJs))
	for _, cnpj := range result.CNPJs {
		fmt.Printf("  %s\n", cnpj)
	}
	fmt.Printf("files with matches: %d\n", len(result.Matches))
	if len(result.MatchPeriods) > 0 {
		fmt.Printf("periods with matches: %v\n", result.MatchPeriods)
	}
	if len(result.Errors) > 0 {
		fmt.Printf("files with errors: %d\n", len(result.Errors))
		for _, fe := range result.Errors {
			fmt.Printf("  %s %s: %s\n", fe.Period, fe.Filename, fe.Message)
		}
	}
}

func writeWorkbook(logger *slog.Logger, path string, req domain.SearchRequest, result *domain.SearchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := exporter.NewExcelWriter(logger).Write(f, req, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
