package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusBadRequest, "INVALID_REQUEST", "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", err.ErrorCode)
}

func TestErrValidationCarriesFieldDetails(t *testing.T) {
	err := ErrValidation("ativo", "must not be empty")
	require.NotNil(t, err.Details)

	detail, ok := err.Details.(ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ativo", detail.Field)
	assert.Equal(t, "must not be empty", detail.Message)
}

func TestProblemDetailsMarshalIncludesExtensions(t *testing.T) {
	problem := NewProblemDetails(http.StatusBadGateway, TypeArchiveFetch, "Bad Gateway", "download failed", "/api/search").
		WithExtension("trace_id", "t-1")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TypeArchiveFetch, decoded["type"])
	assert.Equal(t, float64(http.StatusBadGateway), decoded["status"])
	assert.Equal(t, "download failed", decoded["detail"])
	assert.Equal(t, "t-1", decoded["trace_id"])
}

func TestHandleErrorMapsAPIErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler := NewErrorHandler(logger, false)

	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantType     string
	}{
		{"validation", ErrValidation("categoria", "unknown"), http.StatusBadRequest, TypeValidation},
		{"no archives", ErrNoArchivesFound, http.StatusNotFound, TypeNotFound},
		{"upstream fetch", UpstreamFetchError(fmt.Errorf("status 500")), http.StatusBadGateway, TypeArchiveFetch},
		{"discovery", DiscoveryError(fmt.Errorf("connection refused")), http.StatusBadGateway, TypeDiscoveryFailed},
		{"export", ExportError(fmt.Errorf("disk full")), http.StatusInternalServerError, TypeExportFailed},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/search", nil)
			rec := httptest.NewRecorder()

			handler.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var problem map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantType, problem["type"])
		})
	}
}
