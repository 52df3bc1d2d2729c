package editor

import (
	"fmt"
	"strings"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

// Example is the local, authoritative state of one document of a session.
type Example struct {
	session *Session
	key     string

	doc         model.Example
	dirty       bool
	execOK      bool
	gen         uint64
	annotations map[model.Segment][]Annotation
	lastRun     *ExecutionResult
	lastErr     error
	removed     bool

	// save scheduling, see scheduler.go
	timer    Timer
	armed    uint64
	inFlight bool
	resave   bool
}

// Snapshot is an immutable copy of an example's state.
type Snapshot struct {
	Key                    string
	Example                model.Example
	Dirty                  bool
	LastExecutionSucceeded bool
	State                  SaveState
	Generation             uint64
	Annotations            map[model.Segment][]Annotation
	LastRun                *ExecutionResult
	Err                    error
}

// Indicator is the passive save status shown next to an example.
func (s Snapshot) Indicator() string {
	switch s.State {
	case SaveIdle:
		return "saved"
	case SaveInFlight:
		return "saving"
	case SaveBlocked:
		return "(not saving until error is resolved)"
	case SaveReadOnly:
		return "read-only"
	}
	if s.Err != nil {
		return "save failed, retrying"
	}
	return "editing"
}

// Key is the client-local identity of the example. Unlike the backend id it
// exists before the first save and never changes.
func (e *Example) Key() string {
	return e.key
}

// Snapshot copies the current state.
func (e *Example) Snapshot() Snapshot {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Example) snapshotLocked() Snapshot {
	doc := e.doc
	doc.Comments = Thread(e.doc.Comments).Clone()

	var annotations map[model.Segment][]Annotation
	if e.annotations != nil {
		annotations = make(map[model.Segment][]Annotation, len(e.annotations))
		for seg, list := range e.annotations {
			annotations[seg] = append([]Annotation(nil), list...)
		}
	}
	return Snapshot{
		Key:                    e.key,
		Example:                doc,
		Dirty:                  e.dirty,
		LastExecutionSucceeded: e.execOK,
		State:                  e.stateLocked(),
		Generation:             e.gen,
		Annotations:            annotations,
		LastRun:                e.lastRun,
		Err:                    e.lastErr,
	}
}

// ToDocument returns the wire document a save would send right now.
func (e *Example) ToDocument() model.Example {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()

	doc := e.doc
	doc.Comments = Thread(e.doc.Comments).Clone()
	return doc
}

// =========================================================================
// MUTATIONS
// =========================================================================
//
// Every mutation is refused with apperror.ErrReadOnly when the session does
// not allow it, and otherwise marks the example dirty and re-arms its save.

func (e *Example) mutate(k change, apply func(doc *model.Example) (bool, error)) error {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.removed {
		return apperror.NotFound("example", e.key)
	}
	if err := s.checkLocked(k); err != nil {
		return err
	}
	changed, err := apply(&e.doc)
	if err != nil || !changed {
		return err
	}
	e.markDirtyLocked()
	return nil
}

// SetSegment replaces the text of one segment.
func (e *Example) SetSegment(seg model.Segment, text string) error {
	return e.mutate(changeContent, func(doc *model.Example) (bool, error) {
		if !validSegment(seg) {
			return false, apperror.ValidationFailed("segment", fmt.Sprintf("unknown segment %q", seg))
		}
		if doc.Segment(seg) == text {
			return false, nil
		}
		doc.SetSegment(seg, text)
		return true, nil
	})
}

func (e *Example) SetTitle(title string) error {
	return e.mutate(changeContent, func(doc *model.Example) (bool, error) {
		if doc.Title == title {
			return false, nil
		}
		doc.Title = title
		return true, nil
	})
}

func (e *Example) SetStatus(status model.Status) error {
	return e.mutate(changeWorkflow, func(doc *model.Example) (bool, error) {
		if !status.Valid() {
			return false, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
		}
		if doc.Status == status {
			return false, nil
		}
		doc.Status = status
		return true, nil
	})
}

// SetComments replaces the whole comment thread.
func (e *Example) SetComments(comments []model.Comment) error {
	return e.mutate(changeWorkflow, func(doc *model.Example) (bool, error) {
		doc.Comments = Thread(comments).Clone()
		return true, nil
	})
}

// AddComment appends a comment by the session identity. It gets a backend id
// with the next save of the example.
func (e *Example) AddComment(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperror.ValidationFailed("text", "comment text is required")
	}
	s := e.session
	return e.mutate(changeWorkflow, func(doc *model.Example) (bool, error) {
		doc.Comments = Thread(doc.Comments).Append(model.Comment{
			BackendID: model.UnsavedID,
			ExampleID: doc.BackendID,
			Text:      text,
			CreatedAt: s.clock.Now().Unix(),
			CreatedBy: s.identity,
		})
		return true, nil
	})
}

// EditComment replaces the text of the i-th comment. Dismissal is kept.
func (e *Example) EditComment(i int, text string) error {
	return e.mutate(changeWorkflow, func(doc *model.Example) (bool, error) {
		next, err := Thread(doc.Comments).Edit(i, text)
		if err != nil {
			return false, err
		}
		if next[i].Text == doc.Comments[i].Text {
			return false, nil
		}
		doc.Comments = next
		return true, nil
	})
}

// ToggleDismissed flips the dismissal of the i-th comment. Text is kept.
func (e *Example) ToggleDismissed(i int) error {
	return e.mutate(changeWorkflow, func(doc *model.Example) (bool, error) {
		next, err := Thread(doc.Comments).ToggleDismissed(i)
		if err != nil {
			return false, err
		}
		doc.Comments = next
		return true, nil
	})
}

// Delete removes an unsaved example locally. A saved one is soft-deleted:
// its status becomes deleted and that is saved like any other edit.
func (e *Example) Delete() error {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.removed {
		return nil
	}
	if err := s.checkLocked(changeWorkflow); err != nil {
		return err
	}
	// a create in flight will hand us an id, so soft-delete after it
	if e.doc.BackendID == model.UnsavedID && !e.inFlight {
		s.removeLocked(e)
		return nil
	}
	if e.doc.Status == model.StatusDeleted {
		return nil
	}
	e.doc.Status = model.StatusDeleted
	e.markDirtyLocked()
	return nil
}

// Clone inserts an unsaved copy of the example right after it. The copy has
// no comments and starts in progress.
func (e *Example) Clone() (*Example, error) {
	s := e.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.removed {
		return nil, apperror.NotFound("example", e.key)
	}
	if err := s.checkLocked(changeContent); err != nil {
		return nil, err
	}

	c := s.hydrate(model.Example{
		BackendID: model.UnsavedID,
		Status:    model.StatusInProgress,
		Language:  e.doc.Language,
		Package:   e.doc.Package,
		Title:     e.doc.Title,
		Prelude:   e.doc.Prelude,
		Code:      e.doc.Code,
		Postlude:  e.doc.Postlude,
	})
	c.execOK = e.execOK
	s.insertAfterLocked(e, c)
	c.markDirtyLocked()
	return c, nil
}

func validSegment(seg model.Segment) bool {
	for _, known := range model.Segments {
		if seg == known {
			return true
		}
	}
	return false
}
