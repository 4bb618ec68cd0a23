// Package search orchestrates holdings searches: it selects periods, fetches
// their archives, fans scanning out across workers and merges everything into
// one result.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"cdacli/internal/cvm"
	"cdacli/internal/scanner"
	"cdacli/pkg/contracts/domain"
)

// archiveResult aggregates the scan outcome of one monthly archive.
type archiveResult struct {
	period  string
	cnpjs   map[string]struct{}
	matches []domain.FileMatch
	errors  []domain.FileError
	scanned int
}

// coordinator fans one archive's CSV files out across a bounded worker pool.
type coordinator struct {
	scanner *scanner.Scanner
	logger  *slog.Logger
}

// scanArchive scans every CSV file in the archive with the given parallelism.
// Per-file failures are collected, not propagated; only failure to enumerate
// the archive itself returns an error. Workers never cancel each other, so a
// broken file cannot hide results from the files scanned after it.
func (c *coordinator) scanArchive(ctx context.Context, archive *cvm.Archive, term scanner.Term, workers int) (archiveResult, error) {
	period := archive.Period()

	files, err := archive.CSVFiles()
	if err != nil {
		return archiveResult{}, err
	}

	c.logger.InfoContext(ctx, "scanning archive",
		slog.String("period", period),
		slog.Int("files", len(files)),
		slog.Int("workers", workers))

	results := make(chan scanner.Result, len(files))

	var g errgroup.Group
	g.SetLimit(workers)
	for _, name := range files {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					c.logger.ErrorContext(ctx, "scan worker panic",
						slog.String("file", name),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
					results <- scanner.Result{
						Filename: name,
						Err:      fmt.Errorf("panic while scanning: %v", r),
					}
				}
			}()
			results <- c.scanner.ScanFile(ctx, archive, name, term)
			return nil
		})
	}
	g.Wait()
	close(results)

	// Single-threaded merge; ordering is restored later by the final sort.
	merged := archiveResult{
		period:  period,
		cnpjs:   make(map[string]struct{}),
		scanned: len(files),
	}
	for res := range results {
		if res.Err != nil {
			merged.errors = append(merged.errors, domain.FileError{
				Period:   period,
				Filename: res.Filename,
				Message:  res.Err.Error(),
			})
			continue
		}
		if !res.Found {
			continue
		}
		merged.matches = append(merged.matches, domain.FileMatch{
			Period:   period,
			Filename: res.Filename,
		})
		for cnpj := range res.CNPJs {
			merged.cnpjs[cnpj] = struct{}{}
		}
	}

	return merged, nil
}
