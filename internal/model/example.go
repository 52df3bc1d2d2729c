// Package model defines the data structures shared by the remote store and the
// editing client. The JSON tags are the wire format of the HTTP API, so both
// halves of the module agree on one shape.
package model

import (
	"fmt"
	"strings"
	"time"
)

// UnsavedID is the backend id carried by examples and comments that the
// server has not persisted yet.
const UnsavedID int64 = -1

// Status is the workflow state of an example.
type Status string

const (
	StatusInProgress     Status = "in_progress"
	StatusPendingReview  Status = "pending_review"
	StatusNeedsAttention Status = "needs_attention"
	StatusApproved       Status = "approved"
	StatusDeleted        Status = "deleted"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusInProgress,
	StatusPendingReview,
	StatusNeedsAttention,
	StatusApproved,
	StatusDeleted,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatuses splits a comma separated list ("approved,pending_review")
// into statuses. Blank entries are skipped; unknown ones are an error.
func ParseStatuses(csv string) ([]Status, error) {
	var out []Status
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st := Status(part)
		if !st.Valid() {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

// Segment names one of the three editable code regions of an example.
type Segment string

const (
	SegmentPrelude  Segment = "prelude"
	SegmentCode     Segment = "code"
	SegmentPostlude Segment = "postlude"
)

// Segments lists the segments in the order they are concatenated for execution.
var Segments = []Segment{SegmentPrelude, SegmentCode, SegmentPostlude}

// ResourceID identifies a lockable collection of examples: one package of one
// language.
type ResourceID struct {
	Language string `json:"language"`
	Package  string `json:"package"`
}

func (r ResourceID) String() string {
	return r.Language + "/" + r.Package
}

// Example is one snapshot of a curated code example.
//
// BackendID is stable across snapshots; SnapshotID changes every time the
// content changes. Output is filled from the latest execution run and is never
// written by clients.
type Example struct {
	BackendID  int64     `json:"backendId"`
	SnapshotID int64     `json:"snapshotId,omitempty"`
	User       string    `json:"user"`
	Status     Status    `json:"status"`
	Language   string    `json:"language"`
	Package    string    `json:"package"`
	Title      string    `json:"title"`
	Prelude    string    `json:"prelude"`
	Code       string    `json:"code"`
	Postlude   string    `json:"postlude"`
	Comments   []Comment `json:"comments"`
	Output     string    `json:"output"`
	SnapshotAt int64     `json:"snapshotAt,omitempty"` // seconds since epoch
}

// Resource returns the collection the example belongs to.
func (e *Example) Resource() ResourceID {
	return ResourceID{Language: e.Language, Package: e.Package}
}

// Segment returns the text of one segment.
func (e *Example) Segment(seg Segment) string {
	switch seg {
	case SegmentPrelude:
		return e.Prelude
	case SegmentCode:
		return e.Code
	case SegmentPostlude:
		return e.Postlude
	}
	return ""
}

// SetSegment replaces the text of one segment. Unknown segments are ignored.
func (e *Example) SetSegment(seg Segment, text string) {
	switch seg {
	case SegmentPrelude:
		e.Prelude = text
	case SegmentCode:
		e.Code = text
	case SegmentPostlude:
		e.Postlude = text
	}
}

// ContentEqual reports whether two snapshots carry the same user-visible
// content. Comments and run output are not part of a snapshot.
func (e *Example) ContentEqual(other *Example) bool {
	return e.Title == other.Title &&
		e.Prelude == other.Prelude &&
		e.Code == other.Code &&
		e.Postlude == other.Postlude &&
		e.Status == other.Status
}

// Comment is a reviewer note attached to an example.
//
// Dismissed keeps the wire encoding of the original tool: 0 means open, 1 is a
// dismiss request sent by a client, and anything larger is the unix time the
// server recorded the dismissal at.
type Comment struct {
	BackendID   int64  `json:"backendId"`
	ExampleID   int64  `json:"exampleId"`
	Text        string `json:"text"`
	CreatedAt   int64  `json:"createdAt"`
	CreatedBy   string `json:"createdBy"`
	Dismissed   int64  `json:"dismissed"`
	ModifiedAt  int64  `json:"-"`
	ModifiedBy  string `json:"-"`
	DismissedBy string `json:"-"`
}

// DismissRequest is the Dismissed value a client sends to dismiss a comment.
const DismissRequest int64 = 1

// IsDismissed reports whether the comment is dismissed.
func (c Comment) IsDismissed() bool {
	return c.Dismissed != 0
}

// IsNew reports whether the comment still needs to be inserted.
func (c Comment) IsNew() bool {
	return c.BackendID == UnsavedID || c.BackendID == 0
}

// AccessLock is the single-writer lock on a ResourceID. Expiration is
// advisory: nothing renews it, and an expired lock can be taken over.
type AccessLock struct {
	Language   string    `json:"language,omitempty"`
	Package    string    `json:"package,omitempty"`
	UserEmail  string    `json:"userEmail"`
	Expiration time.Time `json:"expiration"`
}

// Expired reports whether the lock has lapsed at now.
func (l *AccessLock) Expired(now time.Time) bool {
	return !now.Before(l.Expiration)
}

// LockAndList is the combined fetch-and-lock response.
type LockAndList struct {
	AccessLock *AccessLock `json:"accessLock"`
	Examples   []Example   `json:"examples"`
}

// Run records one execution of an example.
type Run struct {
	ID        int64     `json:"id"`
	ExampleID int64     `json:"exampleId"`
	Succeeded bool      `json:"succeeded"`
	Output    string    `json:"output"`
	RanAt     time.Time `json:"ranAt"`
}

// PackageSummary is one row of the packages overview.
type PackageSummary struct {
	Language        string `json:"language"`
	Package         string `json:"package"`
	ExampleCount    int    `json:"exampleCount"`
	CurrentAccessor string `json:"currentAccessor,omitempty"`
}
