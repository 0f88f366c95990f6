package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/assetstore/pkg/assetstore"
)

// ErrorBody is the error payload of every failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// classify maps service errors onto a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, assetstore.ErrInvalidToken):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, assetstore.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, assetstore.ErrNoActiveProject):
		return http.StatusServiceUnavailable, "no_active_project"
	case errors.Is(err, assetstore.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "unsupported_format"
	case errors.Is(err, assetstore.ErrEmptyPayload):
		return http.StatusUnprocessableEntity, "empty_payload"
	case errors.Is(err, assetstore.ErrPathUnavailable):
		return http.StatusNotImplemented, "path_unavailable"
	case errors.Is(err, assetstore.ErrNoReferenceSource):
		return http.StatusConflict, "no_reference_source"
	case errors.Is(err, assetstore.ErrCorruptWrite):
		return http.StatusInternalServerError, "corrupt_write"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: RequestIDFromContext(r.Context()),
	}})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{
		Code:      "bad_request",
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}})
}
