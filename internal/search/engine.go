package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"cdacli/internal/config"
	"cdacli/internal/cvm"
	"cdacli/internal/infrastructure"
	"cdacli/internal/scanner"
	"cdacli/pkg/contracts/domain"
)

// Validation sentinels. The transport layer maps these onto 400 responses;
// the CLI prints them as usage errors.
var (
	ErrEmptyTerm       = errors.New("search term must not be empty")
	ErrInvalidCategory = errors.New("category must be CREDITO_PRIVADO or CDB")
)

// DiscoveryError wraps a failure to list the available archives.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("archive discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FetchError wraps a failure to download or open one period's archive. Any
// such failure aborts the run.
type FetchError struct {
	Period string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("archive %s: %v", e.Period, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ArchiveSource lists and fetches monthly archives. *cvm.Client satisfies it.
type ArchiveSource interface {
	ListAvailable(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, period string) (*cvm.Archive, error)
}

// Engine runs holdings searches end to end.
type Engine struct {
	source  ArchiveSource
	coord   *coordinator
	cfg     config.SearchConfig
	logger  *slog.Logger
	metrics *infrastructure.SearchMetrics
}

// NewEngine wires a search engine. metrics may be nil when telemetry is
// disabled (the CLI path).
func NewEngine(source ArchiveSource, sc *scanner.Scanner, cfg config.SearchConfig, logger *slog.Logger, metrics *infrastructure.SearchMetrics) *Engine {
	logger = logger.With(slog.String("component", "search_engine"))
	return &Engine{
		source:  source,
		coord:   &coordinator{scanner: sc, logger: logger},
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Search scans the N most recent monthly archives for the requested
// instrument and returns the merged, deterministically ordered result.
//
// A failed archive download aborts the whole run: a silently missing month
// would make the aggregated CNPJ list look authoritative when it is not.
// Per-file scan failures, by contrast, are reported inside the result.
func (e *Engine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	start := time.Now()

	term := strings.TrimSpace(req.Term)
	if term == "" {
		return nil, ErrEmptyTerm
	}
	if !req.Category.Valid() {
		return nil, ErrInvalidCategory
	}

	mode := domain.DeriveMatchMode(term, req.Category)
	workers := e.clampWorkers(req.Workers)
	periods := e.clampPeriods(req.Periods)

	e.logger.InfoContext(ctx, "search started",
		slog.String("term", term),
		slog.String("category", string(req.Category)),
		slog.String("mode", string(mode)),
		slog.Int("workers", workers),
		slog.Int("periods", periods))

	available, err := e.source.ListAvailable(ctx)
	if err != nil {
		e.recordSearch(ctx, mode, start, 0, err)
		return nil, &DiscoveryError{Err: err}
	}
	if periods > len(available) {
		periods = len(available)
	}
	selected := available[:periods]

	prepared := scanner.NewTerm(term, mode)

	result := &domain.SearchResult{LastPeriod: selected[0]}
	cnpjs := make(map[string]struct{})

	for _, period := range selected {
		archive, err := e.source.Fetch(ctx, period)
		if err != nil {
			e.recordSearch(ctx, mode, start, 0, err)
			return nil, &FetchError{Period: period, Err: err}
		}
		if e.metrics != nil {
			e.metrics.ArchivesFetchedTotal.Add(ctx, 1)
			e.metrics.ArchiveFetchBytes.Add(ctx, int64(archive.Size()))
		}

		merged, err := e.coord.scanArchive(ctx, archive, prepared, workers)
		if err != nil {
			e.recordSearch(ctx, mode, start, 0, err)
			return nil, &FetchError{Period: period, Err: err}
		}

		if e.metrics != nil {
			e.metrics.FilesScannedTotal.Add(ctx, int64(merged.scanned))
			e.metrics.FileScanErrorsTotal.Add(ctx, int64(len(merged.errors)))
		}

		for cnpj := range merged.cnpjs {
			cnpjs[cnpj] = struct{}{}
		}
		result.Matches = append(result.Matches, merged.matches...)
		result.Errors = append(result.Errors, merged.errors...)
		if len(merged.matches) > 0 {
			result.MatchPeriods = append(result.MatchPeriods, period)
		}
	}

	finalize(result, cnpjs)

	e.logger.InfoContext(ctx, "search completed",
		slog.Int("cnpjs", len(result.CNPJs)),
		slog.Int("matches", len(result.Matches)),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", time.Since(start)))

	e.recordSearch(ctx, mode, start, len(result.CNPJs), nil)
	return result, nil
}

// SearchLatest is a convenience wrapper scanning only the newest archive.
func (e *Engine) SearchLatest(ctx context.Context, term string, category domain.Category, workers int) (*domain.SearchResult, error) {
	return e.Search(ctx, domain.SearchRequest{
		Term:     term,
		Category: category,
		Workers:  workers,
		Periods:  1,
	})
}

func (e *Engine) clampWorkers(n int) int {
	if n == 0 {
		n = e.cfg.DefaultWorkers
	}
	if n < 1 {
		n = 1
	}
	if n > e.cfg.MaxWorkers {
		n = e.cfg.MaxWorkers
	}
	return n
}

func (e *Engine) clampPeriods(n int) int {
	if n == 0 {
		n = e.cfg.DefaultPeriods
	}
	if n < 1 {
		n = 1
	}
	if n > e.cfg.MaxPeriods {
		n = e.cfg.MaxPeriods
	}
	return n
}

func (e *Engine) recordSearch(ctx context.Context, mode domain.MatchMode, start time.Time, cnpjs int, err error) {
	if e.metrics == nil {
		return
	}
	infrastructure.RecordSearch(ctx, e.metrics, string(mode), time.Since(start), cnpjs, err)
}

// finalize freezes the result's ordering. The fan-out produces results in
// completion order; output order must not depend on worker scheduling.
func finalize(result *domain.SearchResult, cnpjs map[string]struct{}) {
	result.CNPJs = make([]string, 0, len(cnpjs))
	for cnpj := range cnpjs {
		result.CNPJs = append(result.CNPJs, cnpj)
	}
	sort.Strings(result.CNPJs)

	sort.Slice(result.Matches, func(i, j int) bool {
		if result.Matches[i].Period != result.Matches[j].Period {
			return result.Matches[i].Period > result.Matches[j].Period
		}
		return result.Matches[i].Filename < result.Matches[j].Filename
	})
	sort.Slice(result.Errors, func(i, j int) bool {
		if result.Errors[i].Period != result.Errors[j].Period {
			return result.Errors[i].Period > result.Errors[j].Period
		}
		return result.Errors[i].Filename < result.Errors[j].Filename
	})
	sort.Sort(sort.Reverse(sort.StringSlice(result.MatchPeriods)))
}
