// Package handler contains the HTTP handlers of the example store.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (path params, query, JSON body)
//  2. Call the service layer with the caller's identity
//  3. Write the response, mapping service errors to status + API code
//
// Handlers hold no business rules; locks, snapshots and comment
// reconciliation live in internal/service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/example-author/internal/apperror"
)

// maxBodyBytes caps request bodies. Segments are limited to 100k characters
// each, so a few MB covers any legitimate example.
const maxBodyBytes = 4 << 20

// ErrorResponse is the error body of every endpoint.
//
// Code is the numeric API code (8 = locked by another identity). Clients
// treat any other code, or none, as retryable. Owner names the lock holder on
// code 8 so the client can show who has the package.
type ErrorResponse struct {
	Code    int    `json:"code,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Owner   string `json:"owner,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already sent, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and API error body.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400 (code 7 unless the service set one)
//	ErrUnauthorized → 401
//	ErrForbidden    → 403
//	ErrNotFound     → 404
//	ErrLockConflict → 409, code 8
//	ErrConflict     → 409
//	ErrRateLimited  → 429
//	ErrTransient    → 503
//	anything else   → 500, code 1, with a generic message
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Never leak raw errors; they can carry SQL or file paths.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Code:    apperror.CodeDBError,
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	code := appErr.Code

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		errorType = "validation_error"
		if code == 0 {
			code = apperror.CodeBadExampleBody
		}
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		errorType = "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
		errorType = "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	case errors.Is(err, apperror.ErrLockConflict):
		status = http.StatusConflict
		errorType = "lock_conflict"
		code = apperror.CodeNeedEditLock
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		errorType = "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		status = http.StatusTooManyRequests
		errorType = "rate_limited"
	case errors.Is(err, apperror.ErrTransient):
		status = http.StatusServiceUnavailable
		errorType = "unavailable"
	default:
		code = apperror.CodeDBError
	}

	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Error:   errorType,
		Message: appErr.Message,
		Owner:   appErr.Owner,
	})
}

// decodeJSON reads a size-limited JSON body into dst. A malformed body is a
// validation error with the given API code.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, code int) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error()).WithCode(code)
	}
	return nil
}

// idParam parses a positive integer path parameter.
func idParam(r *http.Request, name string, code int) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, "invalid id "+strconv.Quote(raw)).WithCode(code)
	}
	return id, nil
}
