package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "cdacli/internal/errors"
	"cdacli/pkg/contracts/domain"
)

// SearchServiceInterface is what the handler needs from the service layer.
type SearchServiceInterface interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
	Export(ctx context.Context, req domain.SearchRequest, w io.Writer) (string, error)
}

// searchRequestBody is the JSON body of the search endpoints. Workers and
// periods are optional; the engine applies defaults and clamps.
type searchRequestBody struct {
	Term     string `json:"ativo" validate:"required"`
	Category string `json:"categoria" validate:"required,oneof=CREDITO_PRIVADO CDB"`
	Workers  int    `json:"workers" validate:"omitempty,min=1"`
	Periods  int    `json:"meses" validate:"omitempty,min=1"`
}

// SearchHandler handles the search endpoints.
type SearchHandler struct {
	service      SearchServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validate     *validator.Validate
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(service SearchServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *SearchHandler {
	return &SearchHandler{
		service:      service,
		logger:       logger.With(slog.String("handler", "search")),
		errorHandler: errorHandler,
		validate:     validator.New(),
	}
}

// Routes returns the search routes.
func (h *SearchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Search)
	r.Post("/export", h.Export)
	return r
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	result, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

// Export handles POST /api/search/export. The workbook is buffered before
// any byte is written so a failed search still returns a proper JSON error.
func (h *SearchHandler) Export(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	filename, err := h.service.Export(r.Context(), req, &buf)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", buf.Len()))

	if _, err := buf.WriteTo(w); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to stream workbook",
			slog.String("error", err.Error()))
	}
}

func (h *SearchHandler) decodeRequest(r *http.Request) (domain.SearchRequest, error) {
	var body searchRequestBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		return domain.SearchRequest{}, apierrors.ErrInvalidRequest
	}

	if err := h.validate.Struct(body); err != nil {
		var details []apierrors.ValidationError
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				details = append(details, apierrors.ValidationError{
					Field:   fe.Field(),
					Message: fmt.Sprintf("failed %s validation", fe.Tag()),
				})
			}
		}
		return domain.SearchRequest{}, apierrors.NewValidationErrors(details)
	}

	return domain.SearchRequest{
		Term:     body.Term,
		Category: domain.Category(body.Category),
		Workers:  body.Workers,
		Periods:  body.Periods,
	}, nil
}
