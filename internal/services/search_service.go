package services

import (
	"context"
	"errors"
	"io"
	"log/slog"

	apierrors "cdacli/internal/errors"
	"cdacli/internal/cvm"
	"cdacli/internal/exporter"
	"cdacli/internal/search"
	"cdacli/pkg/contracts/domain"
)

// SearchEngine is what the service needs from the search layer.
type SearchEngine interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// SearchService exposes holdings searches to the transport layer.
type SearchService struct {
	engine SearchEngine
	excel  *exporter.ExcelWriter
	logger *slog.Logger
}

// NewSearchService creates the search service.
func NewSearchService(engine SearchEngine, excel *exporter.ExcelWriter, logger *slog.Logger) *SearchService {
	return &SearchService{
		engine: engine,
		excel:  excel,
		logger: logger.With(slog.String("service", "search")),
	}
}

// Search runs a holdings search, translating engine failures into API errors.
func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	result, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return result, nil
}

// Export runs a search and renders the result as a workbook streamed to w.
// It returns the suggested filename for the download.
func (s *SearchService) Export(ctx context.Context, req domain.SearchRequest, w io.Writer) (string, error) {
	result, err := s.engine.Search(ctx, req)
	if err != nil {
		return "", s.mapError(ctx, err)
	}

	if err := s.excel.Write(w, req, result); err != nil {
		s.logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
		return "", apierrors.ExportError(err)
	}

	return exporter.Filename(req.Term, req.Category, result.LastPeriod), nil
}

// mapError classifies engine errors for the API surface.
func (s *SearchService) mapError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, search.ErrEmptyTerm):
		return apierrors.ErrValidation("ativo", "must not be empty")
	case errors.Is(err, search.ErrInvalidCategory):
		return apierrors.ErrValidation("categoria", "must be CREDITO_PRIVADO or CDB")
	case errors.Is(err, cvm.ErrNoArchives):
		return apierrors.ErrNoArchivesFound
	}

	var discoveryErr *search.DiscoveryError
	if errors.As(err, &discoveryErr) {
		s.logger.ErrorContext(ctx, "archive discovery failed", slog.String("error", err.Error()))
		return apierrors.DiscoveryError(err)
	}

	var fetchErr *search.FetchError
	if errors.As(err, &fetchErr) {
		s.logger.ErrorContext(ctx, "archive fetch failed",
			slog.String("period", fetchErr.Period),
			slog.String("error", err.Error()))
		return apierrors.UpstreamFetchError(err)
	}

	s.logger.ErrorContext(ctx, "search failed", slog.String("error", err.Error()))
	return apierrors.NewInternalError("search failed unexpectedly")
}
