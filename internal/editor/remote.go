package editor

import (
	"context"

	"github.com/sakif/example-author/internal/model"
)

// Remote is the example store a Session synchronises with.
//
// Errors that carry an API code should unwrap to an *apperror.AppError (see
// apperror.FromCode): code 8 downgrades the whole session to read-only,
// anything else is retried.
type Remote interface {
	// LockAndList acquires the edit lock on res (or reports who holds it)
	// and lists its examples in one round trip.
	LockAndList(ctx context.Context, res model.ResourceID) (*model.LockAndList, error)

	// Release gives up the caller's lock on res.
	Release(ctx context.Context, res model.ResourceID) error

	Create(ctx context.Context, res model.ResourceID, doc model.Example) (*model.Example, error)
	Update(ctx context.Context, doc model.Example) (*model.Example, error)

	// Query lists examples with any of the given statuses across all packages.
	Query(ctx context.Context, statuses []model.Status) ([]model.Example, error)

	Execute(ctx context.Context, language string, req model.ExecuteRequest) (*model.ExecuteResponse, error)
	Autoformat(ctx context.Context, language string, req model.ExecuteRequest) (*model.FormatResponse, error)
}
