package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akolanti/CivicRAG/internal/adapter"
	"github.com/akolanti/CivicRAG/internal/domain/ragErrors"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but can't send a clean status code now
		logRH.Error("Error encoding response", "error", err)
	}
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, message string, retry bool) {
	writeJsonResponse(w, httpCode, adapter.ErrorResponse(httpCode, message, retry))
}

// writeError maps a service error onto its status code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, retry := statusOf(err)
	log := logRH.WithTrace(r.Context()).With("path", r.URL.Path, "status", code)
	if code >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
	} else {
		log.Warn("Request rejected", "error", err)
	}
	WriteErrorResponse(w, code, err.Error(), retry)
}

func statusOf(err error) (int, bool) {
	switch {
	case errors.Is(err, ragErrors.ErrInvalidRequest):
		return http.StatusBadRequest, false
	case errors.Is(err, ragErrors.ErrUnauthorized):
		return http.StatusUnauthorized, false
	case errors.Is(err, ragErrors.ErrForbidden):
		return http.StatusForbidden, false
	case errors.Is(err, ragErrors.ErrDocumentNotFound):
		return http.StatusNotFound, false
	case ragErrors.IsTerminalIngestion(err):
		return http.StatusUnprocessableEntity, false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, true
	case errors.Is(err, ragErrors.ErrEmbeddingProvider), errors.Is(err, ragErrors.ErrGenerationProvider):
		return http.StatusServiceUnavailable, ragErrors.IsRetryable(err)
	}
	return http.StatusInternalServerError, false
}

func validateContext(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		logRH.WithTrace(ctx).Warn("context error", "error", err)
		return false
	}
	return true
}
