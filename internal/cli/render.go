package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func displayID(id int64) string {
	if id <= 0 {
		return "new"
	}
	return strconv.FormatInt(id, 10)
}

// =========================================================================
// EXAMPLES
// =========================================================================

// ExampleRow is one line of an example table.
type ExampleRow struct {
	Key      string       `json:"key"`
	ID       int64        `json:"backendId"`
	Package  string       `json:"package"`
	Status   model.Status `json:"status"`
	Title    string       `json:"title"`
	Comments int          `json:"comments"`
	Open     int          `json:"openComments"`
	Save     string       `json:"save"`
}

// ExampleList is the result of list and moderate.
type ExampleList struct {
	Resource string       `json:"resource,omitempty"`
	Mode     string       `json:"mode"`
	Owner    string       `json:"owner,omitempty"`
	Filter   string       `json:"filter"`
	Examples []ExampleRow `json:"examples"`
}

// NewExampleList describes examples as seen through s.
func NewExampleList(s *editor.Session, examples []*editor.Example, f editor.Filter) *ExampleList {
	out := &ExampleList{
		Mode:     s.Mode().String(),
		Owner:    s.Owner(),
		Filter:   f.String(),
		Examples: []ExampleRow{},
	}
	if s.Mode() != editor.ModeModerate {
		out.Resource = s.Resource().String()
	}
	for _, e := range examples {
		snap := e.Snapshot()
		row := ExampleRow{
			Key:      snap.Key,
			ID:       snap.Example.BackendID,
			Package:  snap.Example.Resource().String(),
			Status:   snap.Example.Status,
			Title:    snap.Example.Title,
			Comments: len(snap.Example.Comments),
			Save:     snap.Indicator(),
		}
		for _, c := range snap.Example.Comments {
			if !c.IsDismissed() {
				row.Open++
			}
		}
		out.Examples = append(out.Examples, row)
	}
	return out
}

func (l *ExampleList) WriteText(w io.Writer) error {
	switch {
	case l.Resource == "":
		fmt.Fprintf(w, "moderation: %s\n", l.Filter)
	case l.Mode == editor.ModeEdit.String():
		fmt.Fprintf(w, "%s: editing (lock held by you)\n", l.Resource)
	default:
		fmt.Fprintf(w, "%s: read-only, locked by %s\n", l.Resource, orNobody(l.Owner))
	}
	if len(l.Examples) == 0 {
		fmt.Fprintln(w, "no examples")
		return nil
	}

	tw := newTable(w)
	if l.Resource == "" {
		fmt.Fprintln(tw, "ID\tPACKAGE\tSTATUS\tCOMMENTS\tTITLE")
		for _, r := range l.Examples {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", displayID(r.ID), r.Package, r.Status, commentCount(r), untitled(r.Title))
		}
	} else {
		fmt.Fprintln(tw, "ID\tSTATUS\tCOMMENTS\tTITLE")
		for _, r := range l.Examples {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", displayID(r.ID), r.Status, commentCount(r), untitled(r.Title))
		}
	}
	return tw.Flush()
}

func commentCount(r ExampleRow) string {
	if r.Comments == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d open", r.Open, r.Comments)
}

func orNobody(owner string) string {
	if owner == "" {
		return "nobody"
	}
	return owner
}

// =========================================================================
// PACKAGES
// =========================================================================

// PackageList is the result of packages.
type PackageList struct {
	Packages []model.PackageSummary `json:"packages"`
}

func (p *PackageList) WriteText(w io.Writer) error {
	if len(p.Packages) == 0 {
		fmt.Fprintln(w, "no packages")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "LANGUAGE\tPACKAGE\tEXAMPLES\tLOCKED BY")
	for _, s := range p.Packages {
		owner := s.CurrentAccessor
		if owner == "" {
			owner = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.Language, s.Package, s.ExampleCount, owner)
	}
	return tw.Flush()
}

// =========================================================================
// RUN
// =========================================================================

// AnnotationRow is one annotation of a run.
type AnnotationRow struct {
	Segment  model.Segment   `json:"segment"`
	Line     int             `json:"line"`
	Severity editor.Severity `json:"severity"`
	Message  string          `json:"message"`
}

// RunReport is the result of run.
type RunReport struct {
	ID              int64           `json:"backendId"`
	Title           string          `json:"title"`
	Succeeded       bool            `json:"succeeded"`
	Output          string          `json:"output"`
	Annotations     []AnnotationRow `json:"annotations"`
	TitleViolations []string        `json:"titleViolations,omitempty"`
	Images          []string        `json:"images,omitempty"`
}

// NewRunReport flattens an execution result, segments in execution order.
func NewRunReport(doc model.Example, r *editor.ExecutionResult) *RunReport {
	out := &RunReport{
		ID:              doc.BackendID,
		Title:           doc.Title,
		Succeeded:       r.Succeeded,
		Output:          r.Output,
		Annotations:     []AnnotationRow{},
		TitleViolations: r.TitleViolations,
	}
	for _, seg := range model.Segments {
		for _, a := range r.Annotations[seg] {
			out.Annotations = append(out.Annotations, AnnotationRow{
				Segment:  seg,
				Line:     a.Line,
				Severity: a.Severity,
				Message:  a.Message,
			})
		}
	}
	for _, img := range r.Images {
		out.Images = append(out.Images, img.Name)
	}
	return out
}

func (r *RunReport) WriteText(w io.Writer) error {
	outcome := "ok"
	if !r.Succeeded {
		outcome = "FAILED"
	}
	fmt.Fprintf(w, "%s %s: %s\n", displayID(r.ID), quoteTitle(r.Title), outcome)

	for _, a := range r.Annotations {
		fmt.Fprintf(w, "  %s:%d: %s: %s\n", a.Segment, a.Line, a.Severity, a.Message)
	}
	for _, v := range r.TitleViolations {
		fmt.Fprintf(w, "  title: %s\n", v)
	}
	for _, name := range r.Images {
		fmt.Fprintf(w, "  image: %s\n", name)
	}
	if r.Output != "" {
		fmt.Fprintln(w, "--- output")
		fmt.Fprint(w, r.Output)
		if !strings.HasSuffix(r.Output, "\n") {
			fmt.Fprintln(w)
		}
	}
	return nil
}

func untitled(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

func quoteTitle(title string) string {
	if title == "" {
		return untitled(title)
	}
	return strconv.Quote(title)
}

// =========================================================================
// PUSH
// =========================================================================

// PushRow is the outcome of one file.
type PushRow struct {
	File   string `json:"file"`
	ID     int64  `json:"backendId"`
	Result string `json:"result"` // created, updated, unchanged, blocked, skipped, failed
	Error  string `json:"error,omitempty"`
}

// PushSummary is the result of push.
type PushSummary struct {
	Resource string    `json:"resource"`
	Files    []PushRow `json:"files"`
}

// Failed counts files that were not stored.
func (p *PushSummary) Failed() int {
	n := 0
	for _, r := range p.Files {
		if r.Result == "failed" || r.Result == "blocked" {
			n++
		}
	}
	return n
}

func (p *PushSummary) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "%s: %d file(s), %d not stored\n", p.Resource, len(p.Files), p.Failed())
	if len(p.Files) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "FILE\tID\tRESULT")
	for _, r := range p.Files {
		result := r.Result
		if r.Error != "" {
			result += ": " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.File, displayID(r.ID), result)
	}
	return tw.Flush()
}
