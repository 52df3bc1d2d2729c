package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

var jsonRes = model.ResourceID{Language: "python", Package: "json"}

// stubRemote is an in-memory store for one package.
type stubRemote struct {
	mu       sync.Mutex
	owner    string
	examples []model.Example
	nextID   int64
	saves    []model.Example
	exec     *model.ExecuteResponse
}

var _ editor.Remote = (*stubRemote)(nil)

func newStubRemote(owner string, examples ...model.Example) *stubRemote {
	return &stubRemote{owner: owner, examples: examples, nextID: 100}
}

func (r *stubRemote) LockAndList(ctx context.Context, res model.ResourceID) (*model.LockAndList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &model.LockAndList{
		AccessLock: &model.AccessLock{UserEmail: r.owner, Expiration: time.Now().Add(time.Hour)},
		Examples:   append([]model.Example(nil), r.examples...),
	}, nil
}

func (r *stubRemote) Release(ctx context.Context, res model.ResourceID) error {
	return nil
}

func (r *stubRemote) Create(ctx context.Context, res model.ResourceID, doc model.Example) (*model.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.store(doc, r.nextID), nil
}

func (r *stubRemote) Update(ctx context.Context, doc model.Example) (*model.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(doc, doc.BackendID), nil
}

func (r *stubRemote) store(doc model.Example, id int64) *model.Example {
	doc.BackendID = id
	comments := make([]model.Comment, len(doc.Comments))
	for i, c := range doc.Comments {
		if c.IsNew() {
			r.nextID++
			c.BackendID = r.nextID
		}
		comments[i] = c
	}
	doc.Comments = comments
	r.saves = append(r.saves, doc)
	return &doc
}

func (r *stubRemote) Query(ctx context.Context, statuses []model.Status) ([]model.Example, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := editor.NewFilter(statuses...)
	var out []model.Example
	for _, e := range r.examples {
		if f.Match(e.Status) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubRemote) Execute(ctx context.Context, language string, req model.ExecuteRequest) (*model.ExecuteResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exec == nil {
		return nil, apperror.Transient(errors.New("executor unavailable"))
	}
	resp := *r.exec
	return &resp, nil
}

func (r *stubRemote) Autoformat(ctx context.Context, language string, req model.ExecuteRequest) (*model.FormatResponse, error) {
	return &model.FormatResponse{Prelude: req.Prelude, Code: req.Code, Postlude: req.Postlude}, nil
}

func (r *stubRemote) saved() []model.Example {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Example(nil), r.saves...)
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stored(id int64, title string) model.Example {
	return model.Example{
		BackendID: id,
		Status:    model.StatusInProgress,
		Language:  "python",
		Package:   "json",
		Title:     title,
		Code:      "print(1)\n",
		Comments:  []model.Comment{},
	}
}

// openManual opens a session that only saves on Push.
func openManual(t *testing.T, r *stubRemote, identity string) *editor.Session {
	t.Helper()
	s, err := editor.Open(context.Background(), r, jsonRes, identity, editor.Options{Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func textFormatter() (*OutputFormatter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &OutputFormatter{Format: "text", Writer: buf}, buf
}
