package model

// ExecuteRequest is sent to the execute and autoformat endpoints.
type ExecuteRequest struct {
	Title     string `json:"title"`
	BackendID int64  `json:"backendId"`
	Prelude   string `json:"prelude"`
	Code      string `json:"code"`
	Postlude  string `json:"postlude"`
}

// Segment returns the text of one segment of the request.
func (r *ExecuteRequest) Segment(seg Segment) string {
	switch seg {
	case SegmentPrelude:
		return r.Prelude
	case SegmentCode:
		return r.Code
	case SegmentPostlude:
		return r.Postlude
	}
	return ""
}

// StyleViolation is a lint finding on one line of one segment. Lines are 1-based.
type StyleViolation struct {
	Segment  Segment `json:"segment"`
	Line     int     `json:"line"`
	Message  string  `json:"message"`
	RuleCode string  `json:"rule_code"`
}

// TitleViolation is a problem with the example title.
type TitleViolation struct {
	Message string `json:"message"`
}

// RuntimeError is an execution error mapped back onto a segment line.
type RuntimeError struct {
	Segment Segment `json:"segment"`
	Line    int     `json:"line"`
	Message string  `json:"message"`
}

// Image is a rendered output image, base64 encoded.
type Image struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// OutputSegment is one piece of the presentation of a segment after a run:
// either the code itself or the output it produced.
type OutputSegment struct {
	Type    string `json:"type"` // "code" or "output"
	Content string `json:"content"`
}

// ExecuteResponse is the result of running an example.
//
// The formatted_* fields are optional: a server that did not reformat a segment
// leaves it out, and clients must keep their local text in that case.
type ExecuteResponse struct {
	Succeeded         bool             `json:"succeeded"`
	Output            string           `json:"output"`
	Images            []Image          `json:"images"`
	StyleViolations   []StyleViolation `json:"style_violations"`
	TitleViolations   []TitleViolation `json:"title_violations"`
	Errors            []RuntimeError   `json:"errors,omitempty"`
	FormattedPrelude  *string          `json:"formatted_prelude,omitempty"`
	FormattedCode     *string          `json:"formatted_code,omitempty"`
	FormattedPostlude *string          `json:"formatted_postlude,omitempty"`
	PreludeSegments   []OutputSegment  `json:"prelude_segments"`
	CodeSegments      []OutputSegment  `json:"code_segments"`
	PostludeSegments  []OutputSegment  `json:"postlude_segments"`
}

// Formatted returns the reformatted text for seg, if the server sent one.
func (r *ExecuteResponse) Formatted(seg Segment) (string, bool) {
	var p *string
	switch seg {
	case SegmentPrelude:
		p = r.FormattedPrelude
	case SegmentCode:
		p = r.FormattedCode
	case SegmentPostlude:
		p = r.FormattedPostlude
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// FormatResponse is the result of the autoformat endpoint. Every segment is
// always present.
type FormatResponse struct {
	Prelude  string `json:"formatted_prelude"`
	Code     string `json:"formatted_code"`
	Postlude string `json:"formatted_postlude"`
}

// Segment returns the formatted text for seg.
func (r *FormatResponse) Segment(seg Segment) string {
	switch seg {
	case SegmentPrelude:
		return r.Prelude
	case SegmentCode:
		return r.Code
	case SegmentPostlude:
		return r.Postlude
	}
	return ""
}
