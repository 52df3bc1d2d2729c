package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/service"
)

// ExecuteHandler serves the execute and autoformat endpoints.
//
// RATE LIMITING:
// Every execute takes a sandbox container from a small pool. One limiter
// for the whole server keeps a burst of requests from queueing behind the
// pool; callers past the limit get 429 straight away instead of waiting.
// Autoformat is pure string work and is not limited.
type ExecuteHandler struct {
	exec    *service.ExecutionService
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler. A nil limiter disables rate
// limiting.
func NewExecuteHandler(exec *service.ExecutionService, limiter *rate.Limiter, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:    exec,
		limiter: limiter,
		logger:  logger,
	}
}

// HandleExecute runs an example.
//
// HTTP: POST /api/{language}/execute
// BODY: {"title", "backendId", "prelude", "code", "postlude"}
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.logger.Warn("execute rate limited", slog.String("remote", r.RemoteAddr))
		writeError(w, apperror.RateLimited())
		return
	}

	var req model.ExecuteRequest
	if err := decodeJSON(w, r, &req, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.exec.Execute(r.Context(), chi.URLParam(r, "language"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleAutoformat returns whitespace-normalised segments.
//
// HTTP: POST /api/{language}/autoformat
func (h *ExecuteHandler) HandleAutoformat(w http.ResponseWriter, r *http.Request) {
	var req model.ExecuteRequest
	if err := decodeJSON(w, r, &req, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.exec.Autoformat(req))
}
