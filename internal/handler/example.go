package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/auth"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/service"
)

// ExampleHandler serves the example, lock and comment endpoints.
//
//	GET    /api/{language}/{package}/lockAndList
//	POST   /api/{language}/{package}/examples
//	DELETE /api/{language}/{package}/lock
//	GET    /api/example/{id}
//	PUT    /api/example/{id}
//	GET    /api/example/{id}/history
//	GET    /api/example/{id}/comments
//	POST   /api/example/{id}/comments
//	GET    /api/comment/{id}
//	PUT    /api/comment/{id}
//	GET    /api/examples/query?statuses=a,b
//	GET    /api/packages
type ExampleHandler struct {
	examples *service.ExampleService
	access   *service.AccessService
	logger   *slog.Logger
}

func NewExampleHandler(examples *service.ExampleService, access *service.AccessService, logger *slog.Logger) *ExampleHandler {
	return &ExampleHandler{
		examples: examples,
		access:   access,
		logger:   logger,
	}
}

func resourceParam(r *http.Request) model.ResourceID {
	return model.ResourceID{
		Language: chi.URLParam(r, "language"),
		Package:  chi.URLParam(r, "package"),
	}
}

// identity returns the caller set by auth.RequireAuth.
func identity(r *http.Request) (string, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok || id == "" {
		return "", apperror.Unauthorized("valid authentication required")
	}
	return id, nil
}

// HandleLockAndList acquires the package lock for the caller (or reports its
// holder) and returns every live example in the package.
func (h *ExampleHandler) HandleLockAndList(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.examples.LockAndList(r.Context(), resourceParam(r), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRelease drops the caller's lock. Releasing a lock someone else holds
// is not an error.
func (h *ExampleHandler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.access.Release(r.Context(), resourceParam(r), caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExampleHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var ex model.Example
	if err := decodeJSON(w, r, &ex, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.examples.Create(r.Context(), resourceParam(r), caller, &ex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ExampleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", apperror.CodeBadExampleID)
	if err != nil {
		writeError(w, err)
		return
	}

	ex, err := h.examples.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// HandleUpdate saves a new version of an example. Sending status "deleted"
// soft-deletes it.
func (h *ExampleHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "id", apperror.CodeBadExampleID)
	if err != nil {
		writeError(w, err)
		return
	}

	var ex model.Example
	if err := decodeJSON(w, r, &ex, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.examples.Update(r.Context(), id, caller, &ex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ExampleHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", apperror.CodeBadExampleID)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := h.examples.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// HandleQuery is the moderation query. An empty or missing statuses list
// returns [].
func (h *ExampleHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	raw := strings.Join(r.URL.Query()["statuses"], ",")
	statuses, err := model.ParseStatuses(raw)
	if err != nil {
		writeError(w, apperror.ValidationFailed("statuses", err.Error()))
		return
	}

	list, err := h.examples.Query(r.Context(), statuses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ExampleHandler) HandlePackages(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.examples.Packages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// =========================================================================
// COMMENTS
// =========================================================================

func (h *ExampleHandler) HandleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", apperror.CodeBadExampleID)
	if err != nil {
		writeError(w, err)
		return
	}

	comments, err := h.examples.ListComments(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *ExampleHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "id", apperror.CodeBadExampleID)
	if err != nil {
		writeError(w, err)
		return
	}

	var c model.Comment
	if err := decodeJSON(w, r, &c, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.examples.AddComment(r.Context(), id, caller, &c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ExampleHandler) HandleGetComment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id", apperror.CodeCommentNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := h.examples.GetComment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ExampleHandler) HandleEditComment(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "id", apperror.CodeCommentNotFound)
	if err != nil {
		writeError(w, err)
		return
	}

	var c model.Comment
	if err := decodeJSON(w, r, &c, apperror.CodeBadExampleBody); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.examples.EditComment(r.Context(), id, caller, &c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
