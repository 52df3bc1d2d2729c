// Package editor is the client half of example authoring: a Session holds one
// opened collection of examples, an Example holds the local state of one
// document in it.
//
// SINGLE WRITER:
// A Session opened with Open tries to take the edit lock of its collection.
// When somebody else holds it every example is read-only. When a save comes
// back with a lock conflict the whole session drops to read-only at once and
// subscribers receive a ReadOnlyEvent naming the new owner.
//
// LOCKING:
// Every state change happens under Session.mu. Network calls run with the
// mutex released and re-enter it to apply their result, so a slow save of
// one example never blocks edits to another.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

// DefaultSaveDelay is the debounce window between the last edit and its save.
const DefaultSaveDelay = time.Second

// Mode is what a session allows its user to change.
type Mode int

const (
	// ModeEdit: the session holds the lock; everything is editable.
	ModeEdit Mode = iota
	// ModeReadOnly: another identity holds the lock, or it was lost.
	ModeReadOnly
	// ModeModerate: a moderation query. Status and comments can change,
	// content cannot.
	ModeModerate
)

func (m Mode) String() string {
	switch m {
	case ModeEdit:
		return "edit"
	case ModeReadOnly:
		return "read-only"
	case ModeModerate:
		return "moderate"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// change classifies a mutation for the mode check.
type change int

const (
	changeContent  change = iota // title, segments, new examples
	changeWorkflow               // status, comments
)

// Options tune a Session. The zero value is usable but saves nothing on its
// own: with SaveDelay <= 0 dirty examples wait for Push.
type Options struct {
	SaveDelay      time.Duration
	ReleaseOnClose bool
	Clock          Clock
	Logger         *slog.Logger
}

// ReadOnlyEvent is published when a session loses its write access.
type ReadOnlyEvent struct {
	Resource model.ResourceID
	Owner    string
}

// Session is one opened collection of examples.
type Session struct {
	mu     sync.Mutex
	remote Remote
	clock  Clock
	logger *slog.Logger
	opts   Options

	resource   model.ResourceID
	identity   string
	owner      string
	expiration time.Time
	mode       Mode
	filter     Filter

	examples    []*Example
	unsaved     map[string]struct{}
	subscribers []chan ReadOnlyEvent
	closed      bool

	// ctx is used by saves started from timers; cancelled by Close.
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func newSession(remote Remote, identity string, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = NewStandardClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		remote:   remote,
		clock:    opts.Clock,
		logger:   opts.Logger,
		opts:     opts,
		identity: identity,
		unsaved:  make(map[string]struct{}),
		filter:   DefaultFilter(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open takes (or observes) the edit lock on res and loads its examples with
// a single LockAndList call. The session is editable only if identity ends up
// owning the lock.
func Open(ctx context.Context, remote Remote, res model.ResourceID, identity string, opts Options) (*Session, error) {
	if res.Language == "" || res.Package == "" {
		return nil, apperror.ValidationFailed("resource", "language and package are required")
	}
	if identity == "" {
		return nil, apperror.ValidationFailed("identity", "identity is required")
	}

	list, err := remote.LockAndList(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", res, err)
	}

	s := newSession(remote, identity, opts)
	s.resource = res
	if list.AccessLock != nil {
		s.owner = list.AccessLock.UserEmail
		s.expiration = list.AccessLock.Expiration
	}
	s.mode = ModeReadOnly
	if s.owner == identity {
		s.mode = ModeEdit
	}
	for _, doc := range list.Examples {
		s.examples = append(s.examples, s.hydrate(doc))
	}

	s.logger.Info("session opened",
		slog.String("resource", res.String()),
		slog.String("mode", s.mode.String()),
		slog.String("owner", s.owner),
		slog.Int("examples", len(s.examples)),
	)
	return s, nil
}

// OpenModeration loads every example matching filter across all packages.
// Moderation takes no lock up front.
func OpenModeration(ctx context.Context, remote Remote, identity string, filter Filter, opts Options) (*Session, error) {
	if identity == "" {
		return nil, apperror.ValidationFailed("identity", "identity is required")
	}
	s := newSession(remote, identity, opts)
	s.mode = ModeModerate
	if err := s.Requery(ctx, filter); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) hydrate(doc model.Example) *Example {
	if doc.Comments == nil {
		doc.Comments = []model.Comment{}
	}
	return &Example{
		session: s,
		key:     xid.New().String(),
		doc:     doc,
		execOK:  true,
	}
}

// =========================================================================
// ACCESS
// =========================================================================

func (s *Session) Resource() model.ResourceID { return s.resource }
func (s *Session) Identity() string           { return s.identity }

// Owner returns the identity holding the lock, as last reported by the store.
func (s *Session) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Expiration is advisory: nothing renews the lock.
func (s *Session) Expiration() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiration
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsOwner reports whether identity may edit the collection right now.
func (s *Session) IsOwner(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeEdit && identity == s.owner
}

// checkLocked reports whether the session accepts a change of kind k.
func (s *Session) checkLocked(k change) error {
	if s.closed {
		return apperror.ReadOnly(s.owner)
	}
	switch s.mode {
	case ModeEdit:
		return nil
	case ModeModerate:
		if k == changeWorkflow {
			return nil
		}
		return apperror.ReadOnly("")
	}
	return apperror.ReadOnly(s.owner)
}

// Subscribe returns a channel that receives a ReadOnlyEvent when the session
// is downgraded. The channel is closed by Close.
func (s *Session) Subscribe() <-chan ReadOnlyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan ReadOnlyEvent, 1)
	if s.closed {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// downgradeLocked switches every example to read-only in one step and stops
// all pending saves. Saves already in flight finish but schedule nothing.
func (s *Session) downgradeLocked(owner string) {
	if s.mode == ModeReadOnly {
		return
	}
	s.mode = ModeReadOnly
	if owner != "" {
		s.owner = owner
	}
	for _, e := range s.examples {
		e.stopTimerLocked()
	}

	s.logger.Warn("lost edit lock, examples are now read-only",
		slog.String("resource", s.resource.String()),
		slog.String("owner", s.owner),
	)

	ev := ReadOnlyEvent{Resource: s.resource, Owner: s.owner}
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Release gives up the lock explicitly and leaves the session read-only.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.mode != ModeEdit {
		s.mu.Unlock()
		return nil
	}
	s.mode = ModeReadOnly
	for _, e := range s.examples {
		e.stopTimerLocked()
	}
	s.mu.Unlock()

	if err := s.remote.Release(ctx, s.resource); err != nil {
		return fmt.Errorf("releasing %s: %w", s.resource, err)
	}
	s.logger.Info("lock released", slog.String("resource", s.resource.String()))
	return nil
}

// Close stops pending saves, waits for saves in flight and closes subscriber
// channels. Dirty examples are not flushed; call Push first for that. The
// lock is released only with Options.ReleaseOnClose.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, e := range s.examples {
		e.stopTimerLocked()
	}
	release := s.opts.ReleaseOnClose && s.mode == ModeEdit
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()

	s.inflight.Wait()
	s.cancel()
	for _, ch := range subs {
		close(ch)
	}

	if release {
		if err := s.remote.Release(ctx, s.resource); err != nil {
			return fmt.Errorf("releasing %s: %w", s.resource, err)
		}
		s.logger.Info("lock released", slog.String("resource", s.resource.String()))
	}
	return nil
}

// =========================================================================
// COLLECTION
// =========================================================================

// Examples returns the collection in display order.
func (s *Session) Examples() []*Example {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Example(nil), s.examples...)
}

// Example looks an example up by its frontend key.
func (s *Session) Example(key string) (*Example, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.examples {
		if e.key == key {
			return e, true
		}
	}
	return nil, false
}

// New appends an empty, unsaved example. Nothing is sent until it is edited.
func (s *Session) New() (*Example, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(changeContent); err != nil {
		return nil, err
	}
	e := s.hydrate(model.Example{
		BackendID: model.UnsavedID,
		Status:    model.StatusInProgress,
		Language:  s.resource.Language,
		Package:   s.resource.Package,
	})
	s.examples = append(s.examples, e)
	return e, nil
}

// insertAfterLocked places e right after prev, or at the end.
func (s *Session) insertAfterLocked(prev, e *Example) {
	for i, cur := range s.examples {
		if cur == prev {
			s.examples = append(s.examples[:i+1], append([]*Example{e}, s.examples[i+1:]...)...)
			return
		}
	}
	s.examples = append(s.examples, e)
}

func (s *Session) removeLocked(e *Example) {
	e.stopTimerLocked()
	e.removed = true
	delete(s.unsaved, e.key)
	for i, cur := range s.examples {
		if cur == e {
			s.examples = append(s.examples[:i], s.examples[i+1:]...)
			return
		}
	}
}

// HasUnsavedWork reports whether any example has edits the store has not
// acknowledged.
func (s *Session) HasUnsavedWork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unsaved) > 0
}

// Unsaved returns the keys of examples with unacknowledged edits, in display
// order.
func (s *Session) Unsaved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for _, e := range s.examples {
		if _, ok := s.unsaved[e.key]; ok {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Visible applies the authoring filter to the loaded collection.
func (s *Session) Visible(f Filter) []*Example {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Example
	for _, e := range s.examples {
		if f.Match(e.doc.Status) {
			out = append(out, e)
		}
	}
	return out
}

// Filter returns the filter of the last moderation query.
func (s *Session) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Requery re-runs the moderation query with f and replaces the whole
// collection with the result. Only moderation sessions can requery.
func (s *Session) Requery(ctx context.Context, f Filter) error {
	s.mu.Lock()
	if s.mode != ModeModerate {
		s.mu.Unlock()
		return apperror.ValidationFailed("filter", "only moderation sessions query by status")
	}
	s.mu.Unlock()

	docs, err := s.remote.Query(ctx, f.Statuses())
	if err != nil {
		return fmt.Errorf("querying %s: %w", f, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.unsaved); n > 0 {
		s.logger.Warn("discarding unsaved moderation edits", slog.Int("examples", n))
	}
	for _, e := range s.examples {
		e.stopTimerLocked()
		e.removed = true
	}
	s.unsaved = make(map[string]struct{})
	s.examples = s.examples[:0:0]
	for _, doc := range docs {
		s.examples = append(s.examples, s.hydrate(doc))
	}
	s.filter = f

	s.logger.Debug("moderation query",
		slog.String("statuses", f.String()),
		slog.Int("examples", len(s.examples)),
	)
	return nil
}

func ownerOf(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Owner
	}
	return ""
}
