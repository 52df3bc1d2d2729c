package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

const (
	MaxTitleLength   = 200
	MaxSegmentLength = 100000
	MaxCommentLength = 10000
)

// ExampleService implements the example endpoints: lockAndList, create,
// update, moderation query, history and the comment endpoints.
type ExampleService struct {
	examples repository.ExampleRepository
	comments repository.CommentRepository
	runs     repository.RunRepository
	access   *AccessService
	logger   *slog.Logger
	now      func() time.Time
}

func NewExampleService(
	examples repository.ExampleRepository,
	comments repository.CommentRepository,
	runs repository.RunRepository,
	access *AccessService,
	logger *slog.Logger,
) *ExampleService {
	return &ExampleService{
		examples: examples,
		comments: comments,
		runs:     runs,
		access:   access,
		logger:   logger,
		now:      time.Now,
	}
}

// LockAndList acquires (or reports) the lock on res and returns every
// non-deleted example of the package with comments and latest output.
func (s *ExampleService) LockAndList(ctx context.Context, res model.ResourceID, identity string) (*model.LockAndList, error) {
	lock, err := s.access.Acquire(ctx, res, identity)
	if err != nil {
		return nil, err
	}

	list, err := s.examples.ListExamples(ctx, res)
	if err != nil {
		s.logger.Error("failed to list examples",
			slog.String("resource", res.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing examples: %w", err)
	}
	if err := s.hydrateAll(ctx, list); err != nil {
		return nil, err
	}

	return &model.LockAndList{
		AccessLock: &model.AccessLock{UserEmail: lock.UserEmail, Expiration: lock.Expiration},
		Examples:   list,
	}, nil
}

// Get returns a single example with comments and latest output.
func (s *ExampleService) Get(ctx context.Context, id int64) (*model.Example, error) {
	ex, err := s.examples.GetExample(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// Create stores a new example in res on behalf of identity.
//
// The example must not carry a backend id yet (code 2). Language and package
// come from res, never from the body. The caller's lock is (re)acquired first,
// so a create against someone else's package fails with code 8.
func (s *ExampleService) Create(ctx context.Context, res model.ResourceID, identity string, ex *model.Example) (*model.Example, error) {
	if err := validateResource(res); err != nil {
		return nil, err
	}
	if ex.BackendID > 0 {
		return nil, apperror.Conflict("example", fmt.Sprint(ex.BackendID)).WithCode(apperror.CodeExampleExists)
	}
	if err := s.access.Require(ctx, res, identity); err != nil {
		return nil, err
	}

	next := s.normalize(ex)
	next.Language = res.Language
	next.Package = res.Package
	next.User = identity
	if err := validateContent(next); err != nil {
		return nil, err
	}

	if err := s.examples.CreateExample(ctx, next); err != nil {
		s.logger.Error("failed to create example",
			slog.String("resource", res.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating example: %w", err)
	}

	if err := s.reconcileComments(ctx, next.BackendID, identity, ex.Comments); err != nil {
		return nil, err
	}

	s.logger.Info("example created",
		slog.Int64("backendId", next.BackendID),
		slog.String("resource", res.String()),
		slog.String("identity", identity),
	)
	if err := s.hydrate(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Update stores a new version of example id.
//
// A new snapshot is only written when title, segments or status changed;
// a comment-only save touches comments alone. Setting status to deleted is a
// soft delete: the example disappears from lists but its history remains.
func (s *ExampleService) Update(ctx context.Context, id int64, identity string, ex *model.Example) (*model.Example, error) {
	if ex.BackendID != id {
		return nil, apperror.ValidationFailed("backendId",
			fmt.Sprintf("body id %d does not match path id %d", ex.BackendID, id)).WithCode(apperror.CodeBadExampleID)
	}
	if ex.Language == "" || ex.Package == "" {
		return nil, apperror.ValidationFailed("package", "language and package are required").WithCode(apperror.CodeBadExampleBody)
	}

	stored, err := s.examples.GetExample(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Require(ctx, stored.Resource(), identity); err != nil {
		return nil, err
	}

	next := s.normalize(ex)
	next.BackendID = stored.BackendID
	next.Language = stored.Language
	next.Package = stored.Package
	next.User = identity
	if err := validateContent(next); err != nil {
		return nil, err
	}

	if stored.ContentEqual(next) {
		next.SnapshotID = stored.SnapshotID
		next.SnapshotAt = stored.SnapshotAt
		next.User = stored.User
	} else if err := s.examples.AppendSnapshot(ctx, next); err != nil {
		s.logger.Error("failed to update example",
			slog.Int64("backendId", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating example %d: %w", id, err)
	}

	if err := s.reconcileComments(ctx, id, identity, ex.Comments); err != nil {
		return nil, err
	}

	s.logger.Info("example updated",
		slog.Int64("backendId", id),
		slog.String("status", string(next.Status)),
		slog.Bool("newSnapshot", next.SnapshotID != stored.SnapshotID),
	)
	if err := s.hydrate(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Query returns examples across every package whose status is in statuses.
func (s *ExampleService) Query(ctx context.Context, statuses []model.Status) ([]model.Example, error) {
	list, err := s.examples.QueryExamples(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("querying examples: %w", err)
	}
	if err := s.hydrateAll(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// History returns every snapshot of an example, oldest first.
func (s *ExampleService) History(ctx context.Context, id int64) ([]model.Example, error) {
	return s.examples.History(ctx, id)
}

// Packages summarises every package and who is editing it right now.
func (s *ExampleService) Packages(ctx context.Context) ([]model.PackageSummary, error) {
	summaries, err := s.examples.PackageSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarising packages: %w", err)
	}
	accessors, err := s.access.Accessors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		res := model.ResourceID{Language: summaries[i].Language, Package: summaries[i].Package}
		summaries[i].CurrentAccessor = accessors[res]
	}
	return summaries, nil
}

// =========================================================================
// COMMENTS
// =========================================================================

func (s *ExampleService) ListComments(ctx context.Context, exampleID int64) ([]model.Comment, error) {
	if _, err := s.examples.GetExample(ctx, exampleID); err != nil {
		return nil, err
	}
	return s.comments.ListComments(ctx, exampleID)
}

func (s *ExampleService) GetComment(ctx context.Context, id int64) (*model.Comment, error) {
	return s.comments.GetComment(ctx, id)
}

// AddComment appends a comment to an example. A comment that already has an
// id is rejected with code 4.
func (s *ExampleService) AddComment(ctx context.Context, exampleID int64, identity string, c *model.Comment) (*model.Comment, error) {
	if !c.IsNew() {
		return nil, apperror.Conflict("comment", fmt.Sprint(c.BackendID)).WithCode(apperror.CodeCommentExists)
	}
	if _, err := s.examples.GetExample(ctx, exampleID); err != nil {
		return nil, err
	}
	created, err := s.insertComment(ctx, exampleID, identity, *c)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// EditComment changes the text or dismissal of comment id.
func (s *ExampleService) EditComment(ctx context.Context, id int64, identity string, c *model.Comment) (*model.Comment, error) {
	if c.BackendID != 0 && c.BackendID != id {
		return nil, apperror.ValidationFailed("backendId",
			fmt.Sprintf("body id %d does not match path id %d", c.BackendID, id)).WithCode(apperror.CodeBadExampleBody)
	}
	existing, err := s.comments.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.updateComment(ctx, existing, identity, *c)
}

// reconcileComments applies the comment list sent with a create or update.
//
// Comments with id −1 or 0 are inserted with server-side created/createdBy.
// Others are updated in place; the client's created/createdBy are ignored.
// Comments missing from the list are left alone: there is no comment delete.
func (s *ExampleService) reconcileComments(ctx context.Context, exampleID int64, identity string, incoming []model.Comment) error {
	for _, c := range incoming {
		if c.IsNew() {
			if _, err := s.insertComment(ctx, exampleID, identity, c); err != nil {
				return err
			}
			continue
		}

		existing, err := s.comments.GetComment(ctx, c.BackendID)
		if err != nil {
			return err
		}
		if existing.ExampleID != exampleID {
			return apperror.ValidationFailed("comments",
				fmt.Sprintf("comment %d belongs to another example", c.BackendID)).WithCode(apperror.CodeBadExampleBody)
		}
		if _, err := s.updateComment(ctx, existing, identity, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *ExampleService) insertComment(ctx context.Context, exampleID int64, identity string, c model.Comment) (*model.Comment, error) {
	text := normalizeText(c.Text)
	if err := validateComment(text); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	created := &model.Comment{
		ExampleID:  exampleID,
		Text:       text,
		CreatedAt:  now,
		CreatedBy:  identity,
		ModifiedAt: now,
		ModifiedBy: identity,
	}
	if c.IsDismissed() {
		created.Dismissed = now
		created.DismissedBy = identity
	}

	if err := s.comments.CreateComment(ctx, created); err != nil {
		s.logger.Error("failed to create comment",
			slog.Int64("exampleId", exampleID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	return created, nil
}

func (s *ExampleService) updateComment(ctx context.Context, existing *model.Comment, identity string, c model.Comment) (*model.Comment, error) {
	text := normalizeText(c.Text)
	if err := validateComment(text); err != nil {
		return nil, err
	}

	now := s.now().Unix()
	updated := *existing
	changed := false

	if text != existing.Text {
		updated.Text = text
		updated.ModifiedAt = now
		updated.ModifiedBy = identity
		changed = true
	}

	// Any non-zero value dismisses. A 1 from the client becomes the time the
	// server first saw the dismissal; an already dismissed comment keeps its
	// original timestamp.
	switch {
	case !c.IsDismissed() && existing.IsDismissed():
		updated.Dismissed = 0
		updated.DismissedBy = ""
		changed = true
	case c.IsDismissed() && !existing.IsDismissed():
		updated.Dismissed = now
		updated.DismissedBy = identity
		changed = true
	}

	if !changed {
		return existing, nil
	}
	if err := s.comments.UpdateComment(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// =========================================================================
// HELPERS
// =========================================================================

// hydrate fills the fields the examples table does not hold: comments and
// the output of the most recent run.
func (s *ExampleService) hydrate(ctx context.Context, ex *model.Example) error {
	comments, err := s.comments.ListComments(ctx, ex.BackendID)
	if err != nil {
		return fmt.Errorf("loading comments for example %d: %w", ex.BackendID, err)
	}
	ex.Comments = comments

	run, err := s.runs.LatestRun(ctx, ex.BackendID)
	if err != nil {
		return fmt.Errorf("loading latest run for example %d: %w", ex.BackendID, err)
	}
	ex.Output = ""
	if run != nil {
		ex.Output = run.Output
	}
	return nil
}

func (s *ExampleService) hydrateAll(ctx context.Context, list []model.Example) error {
	for i := range list {
		if err := s.hydrate(ctx, &list[i]); err != nil {
			return err
		}
	}
	return nil
}

// normalize returns a copy of ex with NFC-normalised, LF-terminated text and
// a default status. Comments are handled separately.
func (s *ExampleService) normalize(ex *model.Example) *model.Example {
	next := &model.Example{
		BackendID: ex.BackendID,
		Status:    ex.Status,
		Title:     strings.TrimSpace(normalizeText(ex.Title)),
		Prelude:   normalizeText(ex.Prelude),
		Code:      normalizeText(ex.Code),
		Postlude:  normalizeText(ex.Postlude),
		Comments:  []model.Comment{},
	}
	if next.Status == "" {
		next.Status = model.StatusInProgress
	}
	return next
}

// normalizeText converts CRLF line endings and composes Unicode so that
// visually identical text compares equal between snapshots.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return norm.NFC.String(s)
}

func validateContent(ex *model.Example) error {
	if !ex.Status.Valid() {
		return apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", ex.Status)).WithCode(apperror.CodeBadExampleBody)
	}
	if len(ex.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength)).WithCode(apperror.CodeBadExampleBody)
	}
	for _, seg := range model.Segments {
		if len(ex.Segment(seg)) > MaxSegmentLength {
			return apperror.ValidationFailed(string(seg),
				fmt.Sprintf("%s must be %d characters or less", seg, MaxSegmentLength)).WithCode(apperror.CodeBadExampleBody)
		}
	}
	return nil
}

func validateComment(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperror.ValidationFailed("text", "comment text is required").WithCode(apperror.CodeBadExampleBody)
	}
	if len(text) > MaxCommentLength {
		return apperror.ValidationFailed("text",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength)).WithCode(apperror.CodeBadExampleBody)
	}
	return nil
}
