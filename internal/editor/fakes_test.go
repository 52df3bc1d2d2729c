package editor

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/example-author/internal/model"
)

// =========================================================================
// FAKE CLOCK
// =========================================================================

// fakeClock fires timers synchronously from Advance, in deadline order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.done
	t.done = true
	return wasActive
}

// Advance moves time forward by d, running every timer that comes due.
// Callbacks run without the clock's lock so they can arm new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.done && !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			active := c.timers[:0]
			for _, t := range c.timers {
				if !t.done {
					active = append(active, t)
				}
			}
			c.timers = active
			c.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		next := due[0]
		next.done = true
		c.now = next.at
		c.mu.Unlock()

		next.f()
	}
}

// pending counts active timers.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// =========================================================================
// FAKE REMOTE
// =========================================================================

type fakeRemote struct {
	mu sync.Mutex

	list     *model.LockAndList
	listErr  error
	nextID   int64
	creates  []model.Example
	updates  []model.Example
	saveErrs []error // consumed one per save; nil entries succeed
	onSave   func()  // runs during a save, after it is recorded

	execResp   *model.ExecuteResponse
	execErr    error
	execCalls  []model.ExecuteRequest
	onExec     func() // runs during an execute, before it answers
	formatResp *model.FormatResponse

	queryResult []model.Example
	queries     [][]model.Status
	released    []model.ResourceID
}

func newFakeRemote(owner string, examples ...model.Example) *fakeRemote {
	return &fakeRemote{
		nextID: 100,
		list: &model.LockAndList{
			AccessLock: &model.AccessLock{UserEmail: owner, Expiration: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)},
			Examples:   examples,
		},
	}
}

func (r *fakeRemote) LockAndList(ctx context.Context, res model.ResourceID) (*model.LockAndList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := *r.list
	out.Examples = append([]model.Example(nil), r.list.Examples...)
	return &out, nil
}

func (r *fakeRemote) Release(ctx context.Context, res model.ResourceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, res)
	return nil
}

func (r *fakeRemote) Create(ctx context.Context, res model.ResourceID, doc model.Example) (*model.Example, error) {
	r.mu.Lock()
	r.creates = append(r.creates, doc)
	err := r.popErr()
	hook := r.onSave
	var saved model.Example
	if err == nil {
		r.nextID++
		saved = r.normalize(doc, r.nextID)
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *fakeRemote) Update(ctx context.Context, doc model.Example) (*model.Example, error) {
	r.mu.Lock()
	r.updates = append(r.updates, doc)
	err := r.popErr()
	hook := r.onSave
	var saved model.Example
	if err == nil {
		saved = r.normalize(doc, doc.BackendID)
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *fakeRemote) popErr() error {
	if len(r.saveErrs) == 0 {
		return nil
	}
	err := r.saveErrs[0]
	r.saveErrs = r.saveErrs[1:]
	return err
}

// normalize gives the document an id and its new comments ids, like the store.
func (r *fakeRemote) normalize(doc model.Example, id int64) model.Example {
	doc.BackendID = id
	doc.SnapshotID++
	comments := make([]model.Comment, len(doc.Comments))
	for i, c := range doc.Comments {
		if c.IsNew() {
			r.nextID++
			c.BackendID = r.nextID
		}
		c.ExampleID = id
		if c.Dismissed == model.DismissRequest {
			c.Dismissed = 1772366400
		}
		comments[i] = c
	}
	doc.Comments = comments
	return doc
}

func (r *fakeRemote) Query(ctx context.Context, statuses []model.Status) ([]model.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, statuses)
	return append([]model.Example(nil), r.queryResult...), nil
}

func (r *fakeRemote) Execute(ctx context.Context, language string, req model.ExecuteRequest) (*model.ExecuteResponse, error) {
	r.mu.Lock()
	r.execCalls = append(r.execCalls, req)
	err := r.execErr
	var resp model.ExecuteResponse
	if err == nil {
		resp = *r.execResp
	}
	hook := r.onExec
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *fakeRemote) Autoformat(ctx context.Context, language string, req model.ExecuteRequest) (*model.FormatResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := *r.formatResp
	return &resp, nil
}

func (r *fakeRemote) saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creates) + len(r.updates)
}

func (r *fakeRemote) lastUpdate() model.Example {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

// =========================================================================
// HELPERS
// =========================================================================

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

var jsonRes = model.ResourceID{Language: "python", Package: "json"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saved(id int64, title string) model.Example {
	return model.Example{
		BackendID: id,
		Status:    model.StatusInProgress,
		Language:  "python",
		Package:   "json",
		Title:     title,
		Code:      "print(" + title + ")\n",
		Comments:  []model.Comment{},
	}
}

func openSession(t *testing.T, remote *fakeRemote, identity string, delay time.Duration) (*Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s, err := Open(context.Background(), remote, jsonRes, identity, Options{
		SaveDelay: delay,
		Clock:     clock,
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, clock
}
