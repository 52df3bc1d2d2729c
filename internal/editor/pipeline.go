package editor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Annotation is a message attached to one line of a segment. Lines are 1-based.
type Annotation struct {
	Line     int
	Message  string
	Severity Severity
}

func (a Annotation) String() string {
	return fmt.Sprintf("%d: %s: %s", a.Line, a.Severity, a.Message)
}

// ExecutionResult is the client view of an execute response.
type ExecutionResult struct {
	Succeeded       bool
	Output          string
	Images          []model.Image
	Annotations     map[model.Segment][]Annotation
	TitleViolations []string
	Formatted       map[model.Segment]string
	Rendered        map[model.Segment][]model.OutputSegment
}

// NewExecutionResult checks the optional fields of resp once and partitions
// its violations by segment.
func NewExecutionResult(resp *model.ExecuteResponse) *ExecutionResult {
	r := &ExecutionResult{
		Succeeded:   resp.Succeeded,
		Output:      resp.Output,
		Images:      resp.Images,
		Annotations: make(map[model.Segment][]Annotation),
		Formatted:   make(map[model.Segment]string),
		Rendered: map[model.Segment][]model.OutputSegment{
			model.SegmentPrelude:  resp.PreludeSegments,
			model.SegmentCode:     resp.CodeSegments,
			model.SegmentPostlude: resp.PostludeSegments,
		},
	}
	for _, v := range resp.StyleViolations {
		r.Annotations[v.Segment] = append(r.Annotations[v.Segment], Annotation{
			Line:     v.Line,
			Message:  fmt.Sprintf("%s (%s)", v.Message, v.RuleCode),
			Severity: SeverityWarning,
		})
	}
	for _, e := range resp.Errors {
		r.Annotations[e.Segment] = append(r.Annotations[e.Segment], Annotation{
			Line:     e.Line,
			Message:  e.Message,
			Severity: SeverityError,
		})
	}
	for _, v := range resp.TitleViolations {
		r.TitleViolations = append(r.TitleViolations, v.Message)
	}
	for _, seg := range model.Segments {
		if text, ok := resp.Formatted(seg); ok {
			r.Formatted[seg] = text
		}
	}
	return r
}

func executeRequest(doc *model.Example) model.ExecuteRequest {
	return model.ExecuteRequest{
		Title:     doc.Title,
		BackendID: doc.BackendID,
		Prelude:   doc.Prelude,
		Code:      doc.Code,
		Postlude:  doc.Postlude,
	}
}

// Run executes the example remotely and attaches the resulting annotations.
//
// A failed run blocks saving the example until a later run succeeds; the
// store keeps whatever it had. A successful run unblocks saving and adopts
// the formatted segments if the example was not edited meanwhile. A
// transport error changes nothing and is returned.
func (e *Example) Run(ctx context.Context) (*ExecutionResult, error) {
	s := e.session
	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return nil, apperror.NotFound("example", e.key)
	}
	req := executeRequest(&e.doc)
	language := e.doc.Language
	gen := e.gen
	s.mu.Unlock()

	if language == "" {
		return nil, apperror.ValidationFailed("language", "example has no language")
	}

	resp, err := s.remote.Execute(ctx, language, req)
	if err != nil {
		s.logger.Warn("execute failed",
			slog.String("key", e.key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("executing example: %w", err)
	}
	result := NewExecutionResult(resp)

	s.mu.Lock()
	defer s.mu.Unlock()

	// annotations always describe the latest run, even a stale one
	e.annotations = result.Annotations
	e.lastRun = result
	e.execOK = result.Succeeded
	if e.removed {
		return result, nil
	}
	if !result.Succeeded {
		e.stopTimerLocked()
		s.logger.Info("run failed, saving blocked",
			slog.String("key", e.key),
			slog.Int64("backendId", e.doc.BackendID),
		)
		return result, nil
	}

	changed := false
	if gen == e.gen && s.checkLocked(changeContent) == nil {
		for seg, text := range result.Formatted {
			if e.doc.Segment(seg) != text {
				e.doc.SetSegment(seg, text)
				changed = true
			}
		}
	}
	switch {
	case changed:
		e.markDirtyLocked()
	case e.dirty && e.timer == nil && !e.inFlight:
		e.scheduleLocked()
	}
	return result, nil
}

// Autoformat replaces the segments with the store's formatting of them. It
// is an ordinary edit: it is saved on the usual debounce and does not count
// as a successful run.
func (e *Example) Autoformat(ctx context.Context) error {
	s := e.session
	s.mu.Lock()
	if e.removed {
		s.mu.Unlock()
		return apperror.NotFound("example", e.key)
	}
	if err := s.checkLocked(changeContent); err != nil {
		s.mu.Unlock()
		return err
	}
	req := executeRequest(&e.doc)
	language := e.doc.Language
	gen := e.gen
	s.mu.Unlock()

	resp, err := s.remote.Autoformat(ctx, language, req)
	if err != nil {
		return fmt.Errorf("formatting example: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != e.gen || e.removed {
		s.logger.Debug("discarding stale autoformat", slog.String("key", e.key))
		return nil
	}
	if err := s.checkLocked(changeContent); err != nil {
		return err
	}
	changed := false
	for _, seg := range model.Segments {
		if text := resp.Segment(seg); e.doc.Segment(seg) != text {
			e.doc.SetSegment(seg, text)
			changed = true
		}
	}
	if changed {
		e.markDirtyLocked()
	}
	return nil
}
