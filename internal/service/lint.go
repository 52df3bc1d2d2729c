package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/example-author/internal/model"
)

// Lint rule codes, named after the pycodestyle checks they mirror.
const (
	RuleTabIndent          = "W191"
	RuleTrailingWhitespace = "W291"
	RuleLineTooLong        = "E501"
	RuleBlankLineAtEnd     = "W391"
)

const (
	MaxLineLength      = 79
	MaxTitleRunes      = 80
	indentSpacesPerTab = 4
)

// FormatSegment normalises the whitespace of one segment:
//   - CRLF becomes LF
//   - tabs in leading indentation become four spaces
//   - trailing whitespace is stripped from every line
//   - trailing blank lines are dropped and a non-empty segment ends in
//     exactly one newline
//
// A segment that is only whitespace formats to "".
func FormatSegment(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if strings.Contains(line[:indent], "\t") {
			line = strings.ReplaceAll(line[:indent], "\t", strings.Repeat(" ", indentSpacesPerTab)) + line[indent:]
		}
		lines[i] = line
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// LintSegment reports style violations in the text as submitted, before
// formatting. Lines are 1-based.
func LintSegment(seg model.Segment, text string) []model.StyleViolation {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	// A final newline terminates the last line rather than starting a new one.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	var out []model.StyleViolation
	add := func(line int, rule, msg string) {
		out = append(out, model.StyleViolation{Segment: seg, Line: line, Message: msg, RuleCode: rule})
	}

	for i, line := range lines {
		n := i + 1
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if strings.Contains(indent, "\t") {
			add(n, RuleTabIndent, "indentation contains tabs")
		}
		if strings.TrimRight(line, " \t") != line {
			add(n, RuleTrailingWhitespace, "trailing whitespace")
		}
		if l := utf8.RuneCountInString(line); l > MaxLineLength {
			add(n, RuleLineTooLong, fmt.Sprintf("line too long (%d > %d characters)", l, MaxLineLength))
		}
	}

	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		add(len(lines), RuleBlankLineAtEnd, "blank line at end of segment")
	}
	return out
}

// ValidateTitle checks the example title. An empty title only reports that
// it is required.
func ValidateTitle(title string) []model.TitleViolation {
	title = strings.TrimSpace(title)
	if title == "" {
		return []model.TitleViolation{{Message: "title is required"}}
	}

	var out []model.TitleViolation
	if strings.HasSuffix(title, ".") {
		out = append(out, model.TitleViolation{Message: "title should not end with a period"})
	}
	if utf8.RuneCountInString(title) > MaxTitleRunes {
		out = append(out, model.TitleViolation{Message: fmt.Sprintf("title must be %d characters or less", MaxTitleRunes)})
	}
	return out
}
