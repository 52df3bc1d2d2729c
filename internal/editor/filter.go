package editor

import (
	"strings"

	"github.com/sakif/example-author/internal/model"
)

// Filter is a set of workflow statuses, kept in workflow order.
type Filter []model.Status

// DefaultFilter shows everything except deleted examples.
func DefaultFilter() Filter {
	return NewFilter(model.StatusInProgress, model.StatusPendingReview,
		model.StatusNeedsAttention, model.StatusApproved)
}

// NewFilter builds a filter from statuses, dropping unknown ones and duplicates.
func NewFilter(statuses ...model.Status) Filter {
	want := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	f := Filter{}
	for _, st := range model.Statuses {
		if want[st] {
			f = append(f, st)
		}
	}
	return f
}

// ParseFilter reads a comma separated status list.
func ParseFilter(csv string) (Filter, error) {
	statuses, err := model.ParseStatuses(csv)
	if err != nil {
		return nil, err
	}
	return NewFilter(statuses...), nil
}

func (f Filter) Match(status model.Status) bool {
	for _, st := range f {
		if st == status {
			return true
		}
	}
	return false
}

func (f Filter) Statuses() []model.Status {
	return append([]model.Status(nil), f...)
}

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, st := range f {
		parts[i] = string(st)
	}
	return strings.Join(parts, ",")
}
