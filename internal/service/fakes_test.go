package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/model"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory stand-ins for the SQLite repositories. They keep the same
// contracts (latest snapshot wins, deleted examples are NotFound, locks are
// granted when free/expired/own) without any SQL.

type fakeExampleRepo struct {
	snapshots map[int64][]model.Example // oldest first
	nextID    int64
	nextSnap  int64
	createErr error
}

func newFakeExampleRepo() *fakeExampleRepo {
	return &fakeExampleRepo{snapshots: make(map[int64][]model.Example)}
}

func (f *fakeExampleRepo) CreateExample(_ context.Context, ex *model.Example) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	f.nextSnap++
	ex.BackendID = f.nextID
	ex.SnapshotID = f.nextSnap
	ex.SnapshotAt = time.Now().Unix()
	stored := *ex
	stored.Comments = nil
	f.snapshots[ex.BackendID] = []model.Example{stored}
	return nil
}

func (f *fakeExampleRepo) latest(id int64) (*model.Example, bool) {
	snaps, ok := f.snapshots[id]
	if !ok || len(snaps) == 0 {
		return nil, false
	}
	cp := snaps[len(snaps)-1]
	cp.Comments = []model.Comment{}
	return &cp, true
}

func (f *fakeExampleRepo) GetExample(_ context.Context, id int64) (*model.Example, error) {
	ex, ok := f.latest(id)
	if !ok || ex.Status == model.StatusDeleted {
		return nil, apperror.NotFound("example", fmt.Sprint(id)).WithCode(apperror.CodeExampleNotFound)
	}
	return ex, nil
}

func (f *fakeExampleRepo) ids() []int64 {
	ids := make([]int64, 0, len(f.snapshots))
	for id := range f.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeExampleRepo) ListExamples(_ context.Context, res model.ResourceID) ([]model.Example, error) {
	out := []model.Example{}
	for _, id := range f.ids() {
		ex, _ := f.latest(id)
		if ex.Resource() == res && ex.Status != model.StatusDeleted {
			out = append(out, *ex)
		}
	}
	return out, nil
}

func (f *fakeExampleRepo) QueryExamples(_ context.Context, statuses []model.Status) ([]model.Example, error) {
	out := []model.Example{}
	for _, id := range f.ids() {
		ex, _ := f.latest(id)
		for _, st := range statuses {
			if ex.Status == st {
				out = append(out, *ex)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeExampleRepo) AppendSnapshot(_ context.Context, ex *model.Example) error {
	if _, ok := f.snapshots[ex.BackendID]; !ok {
		return errors.New("fake: no such example")
	}
	f.nextSnap++
	ex.SnapshotID = f.nextSnap
	stored := *ex
	stored.Comments = nil
	f.snapshots[ex.BackendID] = append(f.snapshots[ex.BackendID], stored)
	return nil
}

func (f *fakeExampleRepo) History(_ context.Context, id int64) ([]model.Example, error) {
	snaps, ok := f.snapshots[id]
	if !ok {
		return nil, apperror.NotFound("example", fmt.Sprint(id))
	}
	return append([]model.Example(nil), snaps...), nil
}

func (f *fakeExampleRepo) PackageSummaries(_ context.Context) ([]model.PackageSummary, error) {
	counts := map[model.ResourceID]int{}
	for _, id := range f.ids() {
		ex, _ := f.latest(id)
		if ex.Status != model.StatusDeleted {
			counts[ex.Resource()]++
		}
	}
	out := []model.PackageSummary{}
	for res, n := range counts {
		out = append(out, model.PackageSummary{Language: res.Language, Package: res.Package, ExampleCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExampleCount != out[j].ExampleCount {
			return out[i].ExampleCount > out[j].ExampleCount
		}
		return out[i].Package < out[j].Package
	})
	return out, nil
}

type fakeCommentRepo struct {
	comments map[int64]*model.Comment
	order    []int64
	nextID   int64
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[int64]*model.Comment)}
}

func (f *fakeCommentRepo) CreateComment(_ context.Context, c *model.Comment) error {
	f.nextID++
	c.BackendID = f.nextID
	stored := *c
	f.comments[c.BackendID] = &stored
	f.order = append(f.order, c.BackendID)
	return nil
}

func (f *fakeCommentRepo) GetComment(_ context.Context, id int64) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", fmt.Sprint(id)).WithCode(apperror.CodeCommentNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCommentRepo) UpdateComment(_ context.Context, c *model.Comment) error {
	existing, ok := f.comments[c.BackendID]
	if !ok {
		return apperror.NotFound("comment", fmt.Sprint(c.BackendID))
	}
	existing.Text = c.Text
	existing.ModifiedAt = c.ModifiedAt
	existing.ModifiedBy = c.ModifiedBy
	existing.Dismissed = c.Dismissed
	existing.DismissedBy = c.DismissedBy
	return nil
}

func (f *fakeCommentRepo) ListComments(_ context.Context, exampleID int64) ([]model.Comment, error) {
	out := []model.Comment{}
	for _, id := range f.order {
		if c := f.comments[id]; c.ExampleID == exampleID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeLockRepo struct {
	locks map[model.ResourceID]model.AccessLock
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{locks: make(map[model.ResourceID]model.AccessLock)}
}

func (f *fakeLockRepo) AcquireLock(_ context.Context, res model.ResourceID, identity string, now time.Time, ttl time.Duration) (*model.AccessLock, error) {
	lock, held := f.locks[res]
	if !held || lock.UserEmail == identity || lock.Expired(now) {
		lock = model.AccessLock{Language: res.Language, Package: res.Package, UserEmail: identity, Expiration: now.Add(ttl)}
		f.locks[res] = lock
	}
	return &lock, nil
}

func (f *fakeLockRepo) ReleaseLock(_ context.Context, res model.ResourceID, identity string) error {
	if lock, ok := f.locks[res]; ok && lock.UserEmail == identity {
		delete(f.locks, res)
	}
	return nil
}

func (f *fakeLockRepo) ActiveLocks(_ context.Context, now time.Time) ([]model.AccessLock, error) {
	var out []model.AccessLock
	for _, l := range f.locks {
		if !l.Expired(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

type fakeRunRepo struct {
	runs []model.Run
	err  error
}

func (f *fakeRunRepo) RecordRun(_ context.Context, run *model.Run) error {
	if f.err != nil {
		return f.err
	}
	run.ID = int64(len(f.runs) + 1)
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRunRepo) LatestRun(_ context.Context, exampleID int64) (*model.Run, error) {
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].ExampleID == exampleID {
			r := f.runs[i]
			return &r, nil
		}
	}
	return nil, nil
}

// fakeExecutor returns a canned result and records the last program.
type fakeExecutor struct {
	result *executor.Result
	err    error
	last   executor.Program
}

func (f *fakeExecutor) Run(_ context.Context, prog executor.Program) (*executor.Result, error) {
	f.last = prog
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock lets tests move time explicitly.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type exampleFixture struct {
	svc      *ExampleService
	access   *AccessService
	examples *fakeExampleRepo
	comments *fakeCommentRepo
	locks    *fakeLockRepo
	runs     *fakeRunRepo
	clock    *fixedClock
}

func newExampleFixture(t *testing.T) *exampleFixture {
	t.Helper()
	f := &exampleFixture{
		examples: newFakeExampleRepo(),
		comments: newFakeCommentRepo(),
		locks:    newFakeLockRepo(),
		runs:     &fakeRunRepo{},
		clock:    &fixedClock{t: time.Unix(1700000000, 0)},
	}
	f.access = NewAccessService(f.locks, 30*time.Minute, discardLogger())
	f.access.now = f.clock.now
	f.svc = NewExampleService(f.examples, f.comments, f.runs, f.access, discardLogger())
	f.svc.now = f.clock.now
	return f
}
