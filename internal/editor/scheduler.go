package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

// SaveState is where an example is in its save cycle:
//
//	idle → dirty → scheduled → in-flight → idle
//	                    ↑           ├──→ scheduled   (failure, retried)
//	                    │           └──→ read-only   (lock conflict)
//	             blocked (last run failed) ──→ scheduled (after a good run)
type SaveState int

const (
	SaveIdle SaveState = iota
	SaveDirty
	SaveScheduled
	SaveInFlight
	SaveBlocked
	SaveReadOnly
)

func (s SaveState) String() string {
	switch s {
	case SaveIdle:
		return "idle"
	case SaveDirty:
		return "dirty"
	case SaveScheduled:
		return "scheduled"
	case SaveInFlight:
		return "in-flight"
	case SaveBlocked:
		return "blocked"
	case SaveReadOnly:
		return "read-only"
	}
	return fmt.Sprintf("SaveState(%d)", int(s))
}

// errNothingToSave means the example is not eligible for a save right now.
var errNothingToSave = errors.New("nothing to save")

func (e *Example) stateLocked() SaveState {
	switch {
	case e.session.mode == ModeReadOnly:
		return SaveReadOnly
	case e.inFlight:
		return SaveInFlight
	case e.dirty && !e.execOK:
		return SaveBlocked
	case e.timer != nil:
		return SaveScheduled
	case e.dirty:
		return SaveDirty
	}
	return SaveIdle
}

func (e *Example) markDirtyLocked() {
	e.gen++
	e.dirty = true
	e.session.unsaved[e.key] = struct{}{}
	e.scheduleLocked()
}

// scheduleLocked (re)arms the debounce timer. The previous handle is always
// stopped first, so at most one save is pending per example.
func (e *Example) scheduleLocked() {
	s := e.session
	e.stopTimerLocked()
	if s.closed || e.removed || s.mode == ModeReadOnly || !e.execOK || s.opts.SaveDelay <= 0 {
		return
	}
	seq := e.armed
	e.timer = s.clock.AfterFunc(s.opts.SaveDelay, func() { e.fire(seq) })
}

// stopTimerLocked cancels the pending save. Bumping armed also disarms a
// callback that already started but has not taken the lock yet.
func (e *Example) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.armed++
}

func (e *Example) fire(seq uint64) {
	s := e.session
	s.mu.Lock()
	if seq != e.armed {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	if e.inFlight {
		// one save at a time per example; finishSaveLocked re-arms
		e.resave = true
		s.mu.Unlock()
		return
	}
	req, err := e.beginSaveLocked()
	s.mu.Unlock()
	if err != nil {
		return
	}
	e.send(s.ctx, req)
}

type saveRequest struct {
	doc    model.Example
	gen    uint64
	create bool
}

// beginSaveLocked captures the document to send and marks the example in
// flight. errNothingToSave covers clean, blocked and read-only examples.
func (e *Example) beginSaveLocked() (saveRequest, error) {
	s := e.session
	if s.closed || e.removed || s.mode == ModeReadOnly || !e.dirty || !e.execOK || e.inFlight {
		return saveRequest{}, errNothingToSave
	}

	doc := e.doc
	doc.Comments = Thread(e.doc.Comments).Clone()
	req := saveRequest{doc: doc, gen: e.gen, create: doc.BackendID == model.UnsavedID}

	if req.create && (doc.Language == "" || doc.Package == "") {
		err := apperror.ValidationFailed("package", "no target package for new example")
		e.lastErr = err
		s.logger.Error("save aborted",
			slog.String("key", e.key),
			slog.String("error", err.Error()),
		)
		return saveRequest{}, err
	}

	e.inFlight = true
	s.inflight.Add(1)
	return req, nil
}

// send performs the round trip for req and applies the outcome.
func (e *Example) send(ctx context.Context, req saveRequest) error {
	s := e.session
	defer s.inflight.Done()

	var (
		saved *model.Example
		err   error
	)
	if req.create {
		res := model.ResourceID{Language: req.doc.Language, Package: req.doc.Package}
		saved, err = s.remote.Create(ctx, res, req.doc)
	} else {
		saved, err = s.remote.Update(ctx, req.doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.finishSaveLocked(req, saved, err)
	return err
}

func (e *Example) finishSaveLocked(req saveRequest, saved *model.Example, err error) {
	s := e.session
	e.inFlight = false
	e.resave = false
	if e.removed {
		return
	}

	if err != nil {
		e.lastErr = err
		if errors.Is(err, apperror.ErrLockConflict) {
			s.downgradeLocked(ownerOf(err))
			return
		}
		s.logger.Warn("save failed, will retry",
			slog.String("key", e.key),
			slog.Int64("backendId", req.doc.BackendID),
			slog.String("error", err.Error()),
		)
		e.scheduleLocked()
		return
	}

	e.lastErr = nil
	if e.doc.BackendID == model.UnsavedID {
		e.doc.BackendID = saved.BackendID
	}
	e.doc.SnapshotID = saved.SnapshotID
	e.doc.User = saved.User
	e.doc.Output = saved.Output

	s.logger.Debug("saved",
		slog.String("key", e.key),
		slog.Int64("backendId", e.doc.BackendID),
		slog.Bool("create", req.create),
	)

	if req.gen == e.gen {
		e.doc.Comments = Thread(saved.Comments).Clone()
		e.dirty = false
		delete(s.unsaved, e.key)
		return
	}

	// edited while in flight: keep local state, take the new comment ids
	e.doc.Comments = adoptCommentIDs(e.doc.Comments, saved.Comments)
	if e.timer == nil {
		e.scheduleLocked()
	}
}

// =========================================================================
// BULK
// =========================================================================

// BulkPlan splits a collection into three disjoint sets of positions. Each
// set lists positions from the most recently added example to the oldest.
type BulkPlan struct {
	Create    []int // new and modified
	Update    []int // modified, already saved
	Unchanged []int
}

// PlanBulk classifies snapshots by position.
func PlanBulk(snaps []Snapshot) BulkPlan {
	var p BulkPlan
	for i := len(snaps) - 1; i >= 0; i-- {
		switch {
		case snaps[i].Dirty && snaps[i].Example.BackendID == model.UnsavedID:
			p.Create = append(p.Create, i)
		case snaps[i].Dirty:
			p.Update = append(p.Update, i)
		default:
			p.Unchanged = append(p.Unchanged, i)
		}
	}
	return p
}

// PushReport describes a Push by collection position.
type PushReport struct {
	Plan    BulkPlan
	Saved   []int
	Blocked []int // last run failed
	Skipped []int // a save was already in flight
	Failed  map[int]error
}

// Push saves every modified example now, one synchronous round trip at a
// time: creates first, then updates, each from the most recent example to
// the oldest. A failed example is reported and the rest continue; a lock
// conflict stops the push and downgrades the session.
func (s *Session) Push(ctx context.Context) (*PushReport, error) {
	s.mu.Lock()
	if err := s.checkLocked(changeWorkflow); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	targets := append([]*Example(nil), s.examples...)
	snaps := make([]Snapshot, len(targets))
	for i, e := range targets {
		snaps[i] = e.snapshotLocked()
	}
	s.mu.Unlock()

	plan := PlanBulk(snaps)
	report := &PushReport{Plan: plan, Failed: make(map[int]error)}

	order := append(append([]int(nil), plan.Create...), plan.Update...)
	for _, i := range order {
		e := targets[i]

		s.mu.Lock()
		inFlight := e.inFlight
		if !inFlight {
			e.stopTimerLocked()
		}
		req, err := e.beginSaveLocked()
		blocked := !e.execOK
		mode, owner := s.mode, s.owner
		s.mu.Unlock()

		if mode == ModeReadOnly {
			return report, apperror.ReadOnly(owner)
		}
		switch {
		case inFlight:
			report.Skipped = append(report.Skipped, i)
			continue
		case errors.Is(err, errNothingToSave):
			if blocked {
				report.Blocked = append(report.Blocked, i)
			}
			continue
		case err != nil:
			report.Failed[i] = err
			continue
		}

		if err := e.send(ctx, req); err != nil {
			if errors.Is(err, apperror.ErrLockConflict) {
				return report, err
			}
			report.Failed[i] = err
			continue
		}
		report.Saved = append(report.Saved, i)
	}

	s.logger.Info("push finished",
		slog.Int("saved", len(report.Saved)),
		slog.Int("blocked", len(report.Blocked)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}
