package repository

import (
	"context"
	"time"

	"github.com/sakif/example-author/internal/model"
)

// ExampleRepository stores examples as a stable id plus a history of snapshots.
// Reads return the latest snapshot without comments or run output.
type ExampleRepository interface {
	CreateExample(ctx context.Context, example *model.Example) error
	GetExample(ctx context.Context, id int64) (*model.Example, error)
	ListExamples(ctx context.Context, resource model.ResourceID) ([]model.Example, error)
	QueryExamples(ctx context.Context, statuses []model.Status) ([]model.Example, error)
	AppendSnapshot(ctx context.Context, example *model.Example) error
	History(ctx context.Context, id int64) ([]model.Example, error)
	PackageSummaries(ctx context.Context) ([]model.PackageSummary, error)
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id int64) (*model.Comment, error)
	UpdateComment(ctx context.Context, comment *model.Comment) error
	ListComments(ctx context.Context, exampleID int64) ([]model.Comment, error)
}

// LockRepository persists access locks. AcquireLock grants the lock to
// identity when it is free, expired, or already held by identity, and returns
// the lock as it stands afterwards either way.
type LockRepository interface {
	AcquireLock(ctx context.Context, resource model.ResourceID, identity string, now time.Time, ttl time.Duration) (*model.AccessLock, error)
	ReleaseLock(ctx context.Context, resource model.ResourceID, identity string) error
	ActiveLocks(ctx context.Context, now time.Time) ([]model.AccessLock, error)
}

// RunRepository records example executions. LatestRun returns (nil, nil) for
// an example that was never run.
type RunRepository interface {
	RecordRun(ctx context.Context, run *model.Run) error
	LatestRun(ctx context.Context, exampleID int64) (*model.Run, error)
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}
