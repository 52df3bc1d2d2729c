package editor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
)

// Thread is the ordered comment list of an example. Order is insertion
// order: edits and dismissals never move a comment, and there is no delete.
// Methods return a new Thread and leave the receiver untouched.
type Thread []model.Comment

// Clone copies the thread. A nil thread clones to an empty one.
func (t Thread) Clone() Thread {
	out := make(Thread, len(t))
	copy(out, t)
	return out
}

// Append adds c at the end.
func (t Thread) Append(c model.Comment) Thread {
	out := make(Thread, len(t), len(t)+1)
	copy(out, t)
	return append(out, c)
}

// Edit replaces the text of the i-th comment. Blank text is refused: the
// store would reject every save carrying it.
func (t Thread) Edit(i int, text string) (Thread, error) {
	if err := t.check(i); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.ValidationFailed("text", "comment text is required")
	}
	out := t.Clone()
	out[i].Text = text
	return out, nil
}

// ToggleDismissed dismisses an open comment or reopens a dismissed one. A
// dismissal is sent as model.DismissRequest; the store replaces it with the
// time it recorded.
func (t Thread) ToggleDismissed(i int) (Thread, error) {
	if err := t.check(i); err != nil {
		return nil, err
	}
	out := t.Clone()
	if out[i].IsDismissed() {
		out[i].Dismissed = 0
	} else {
		out[i].Dismissed = model.DismissRequest
	}
	return out, nil
}

func (t Thread) check(i int) error {
	if i < 0 || i >= len(t) {
		return apperror.ValidationFailed("comment", fmt.Sprintf("no comment at position %d", i))
	}
	return nil
}

// adoptCommentIDs gives unsaved local comments the ids the store assigned
// them, matching by text in order. It is used when the example changed while
// the save was in flight, so the saved list cannot simply replace the local one.
func adoptCommentIDs(local, saved []model.Comment) Thread {
	known := make(map[int64]bool, len(local))
	for _, c := range local {
		if !c.IsNew() {
			known[c.BackendID] = true
		}
	}
	var fresh []model.Comment
	for _, c := range saved {
		if !known[c.BackendID] {
			fresh = append(fresh, c)
		}
	}

	out := Thread(local).Clone()
	for i := range out {
		if !out[i].IsNew() {
			continue
		}
		text := norm.NFC.String(out[i].Text)
		for j, c := range fresh {
			if c.Text == text {
				out[i].BackendID = c.BackendID
				out[i].CreatedAt = c.CreatedAt
				out[i].CreatedBy = c.CreatedBy
				fresh = append(fresh[:j], fresh[j+1:]...)
				break
			}
		}
	}
	return out
}

var relativeUnits = []struct {
	size  time.Duration
	label string
}{
	{365 * 24 * time.Hour, "year"},
	{4 * 7 * 24 * time.Hour, "month"},
	{7 * 24 * time.Hour, "week"},
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

// RelativeTime renders createdAt (unix seconds) relative to now using the
// coarsest unit that rounds to a non-zero count: "3 days ago", "1 hour from
// now", "just now". A createdAt of 0 means unset and renders as "".
func RelativeTime(createdAt int64, now time.Time) string {
	if createdAt == 0 {
		return ""
	}
	diff := time.Unix(createdAt, 0).Sub(now)

	for _, u := range relativeUnits {
		n := int64(math.Floor(float64(diff)/float64(u.size) + 0.5))
		if n == 0 {
			continue
		}
		suffix := "ago"
		if n > 0 {
			suffix = "from now"
		} else {
			n = -n
		}
		label := u.label
		if n != 1 {
			label += "s"
		}
		return fmt.Sprintf("%d %s %s", n, label, suffix)
	}
	return "just now"
}
