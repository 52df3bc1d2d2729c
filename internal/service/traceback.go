package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/example-author/internal/model"
)

// tracebackFrame matches a frame of the concatenated program. Frames in
// library files name a real path and are skipped.
var tracebackFrame = regexp.MustCompile(`File "<string>", line (\d+)`)

// segmentLayout records where each segment starts in the concatenated
// program, so a program line can be mapped back to a segment line.
type segmentLayout struct {
	segments []model.Segment
	starts   []int // 1-based first line of each segment
	lengths  []int
}

// concatenate joins the segments into one program, each on its own lines.
func concatenate(req model.ExecuteRequest) (string, segmentLayout) {
	var b strings.Builder
	var layout segmentLayout
	line := 1

	for _, seg := range model.Segments {
		text := req.Segment(seg)
		if text != "" && !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		n := strings.Count(text, "\n")

		layout.segments = append(layout.segments, seg)
		layout.starts = append(layout.starts, line)
		layout.lengths = append(layout.lengths, n)

		b.WriteString(text)
		line += n
	}
	return b.String(), layout
}

// locate maps a 1-based program line to a segment and a 1-based line in it.
func (l segmentLayout) locate(line int) (model.Segment, int, bool) {
	for i, seg := range l.segments {
		if line >= l.starts[i] && line < l.starts[i]+l.lengths[i] {
			return seg, line - l.starts[i] + 1, true
		}
	}
	return "", 0, false
}

// parseTraceback turns a Python traceback into a runtime error located at
// the innermost frame of the example itself. The message is the final line
// of stderr ("ValueError: boom"). It returns nil when stderr holds no frame
// of the program.
func parseTraceback(stderr string, layout segmentLayout) []model.RuntimeError {
	matches := tracebackFrame.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	line, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return nil
	}
	seg, segLine, ok := layout.locate(line)
	if !ok {
		return nil
	}
	return []model.RuntimeError{{
		Segment: seg,
		Line:    segLine,
		Message: lastLine(stderr),
	}}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
