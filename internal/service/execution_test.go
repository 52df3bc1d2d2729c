package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/model"
)

// =========================================================================
// FORMAT / LINT / TITLE
// =========================================================================

func TestFormatSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", "  \n\t\n", ""},
		{"adds final newline", "x = 1", "x = 1\n"},
		{"strips trailing whitespace", "x = 1   \ny = 2\t\n", "x = 1\ny = 2\n"},
		{"expands indentation tabs", "if x:\n\treturn 1\n", "if x:\n    return 1\n"},
		{"keeps tabs inside strings", "s = 'a\tb'\n", "s = 'a\tb'\n"},
		{"drops trailing blank lines", "x = 1\n\n\n", "x = 1\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSegment(tt.in))
		})
	}
}

func TestFormatSegment_Idempotent(t *testing.T) {
	in := "import os \n\tprint(os.getcwd())\t\n\n"
	once := FormatSegment(in)
	assert.Equal(t, once, FormatSegment(once))
}

func TestLintSegment(t *testing.T) {
	long := "x = '" + strings.Repeat("a", 80) + "'"

	tests := []struct {
		name  string
		in    string
		rules []string
		lines []int
	}{
		{"clean", "x = 1\n", nil, nil},
		{"tab indent", "if x:\n\ty()\n", []string{RuleTabIndent}, []int{2}},
		{"trailing whitespace", "x = 1  \n", []string{RuleTrailingWhitespace}, []int{1}},
		{"line too long", long + "\n", []string{RuleLineTooLong}, []int{1}},
		{"blank line at end", "x = 1\n\n", []string{RuleBlankLineAtEnd}, []int{2}},
		{"no final newline is fine", "x = 1", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LintSegment(model.SegmentCode, tt.in)
			var rules []string
			var lines []int
			for _, v := range got {
				rules = append(rules, v.RuleCode)
				lines = append(lines, v.Line)
				assert.Equal(t, model.SegmentCode, v.Segment)
			}
			assert.Equal(t, tt.rules, rules)
			assert.Equal(t, tt.lines, lines)
		})
	}
}

func TestLintSegment_LineTooLongMessage(t *testing.T) {
	got := LintSegment(model.SegmentPrelude, strings.Repeat("y", 85))
	require.Len(t, got, 1)
	assert.Equal(t, "line too long (85 > 79 characters)", got[0].Message)
}

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"Dump a dict to JSON", nil},
		{"", []string{"title is required"}},
		{"   ", []string{"title is required"}},
		{"Ends with a period.", []string{"title should not end with a period"}},
		{strings.Repeat("t", 81), []string{"title must be 80 characters or less"}},
		{strings.Repeat("t", 80) + ".", []string{"title should not end with a period", "title must be 80 characters or less"}},
	}

	for _, tt := range tests {
		var got []string
		for _, v := range ValidateTitle(tt.title) {
			got = append(got, v.Message)
		}
		assert.Equal(t, tt.want, got, "title %q", tt.title)
	}
}

// =========================================================================
// TRACEBACK MAPPING
// =========================================================================

func TestParseTraceback_MapsToSegment(t *testing.T) {
	_, layout := concatenate(model.ExecuteRequest{
		Prelude:  "import json\nimport os\n",
		Code:     "x = 1\nraise ValueError('boom')\n",
		Postlude: "print(x)\n",
	})

	stderr := "Traceback (most recent call last):\n" +
		"  File \"<string>\", line 4, in <module>\n" +
		"ValueError: boom\n"

	got := parseTraceback(stderr, layout)
	require.Len(t, got, 1)
	assert.Equal(t, model.SegmentCode, got[0].Segment)
	assert.Equal(t, 2, got[0].Line)
	assert.Equal(t, "ValueError: boom", got[0].Message)
}

func TestParseTraceback_InnermostProgramFrameWins(t *testing.T) {
	_, layout := concatenate(model.ExecuteRequest{
		Prelude:  "def f():\n    return 1 / 0\n",
		Code:     "f()\n",
		Postlude: "",
	})

	stderr := "Traceback (most recent call last):\n" +
		"  File \"<string>\", line 3, in <module>\n" +
		"  File \"<string>\", line 2, in f\n" +
		"ZeroDivisionError: division by zero\n"

	got := parseTraceback(stderr, layout)
	require.Len(t, got, 1)
	assert.Equal(t, model.SegmentPrelude, got[0].Segment)
	assert.Equal(t, 2, got[0].Line)
}

func TestParseTraceback_NoFrame(t *testing.T) {
	_, layout := concatenate(model.ExecuteRequest{Code: "x\n"})
	assert.Nil(t, parseTraceback("Killed\n", layout))
}

func TestConcatenate_SegmentWithoutNewline(t *testing.T) {
	src, layout := concatenate(model.ExecuteRequest{Prelude: "a = 1", Code: "b = 2", Postlude: ""})
	assert.Equal(t, "a = 1\nb = 2\n", src)

	seg, line, ok := layout.locate(2)
	require.True(t, ok)
	assert.Equal(t, model.SegmentCode, seg)
	assert.Equal(t, 1, line)
}

// =========================================================================
// EXECUTE
// =========================================================================

func TestExecute_Success(t *testing.T) {
	exec := &fakeExecutor{result: &executor.Result{Stdout: "{}\n"}}
	runs := &fakeRunRepo{}
	svc := NewExecutionService(exec, runs, discardLogger())

	resp, err := svc.Execute(context.Background(), "python", model.ExecuteRequest{
		Title:     "Dump an object",
		BackendID: 7,
		Prelude:   "import json  \n",
		Code:      "print(json.dumps({}))",
	})
	require.NoError(t, err)

	assert.True(t, resp.Succeeded)
	assert.Equal(t, "{}\n", resp.Output)
	assert.Empty(t, resp.TitleViolations)
	assert.NotNil(t, resp.Images)
	require.Len(t, resp.StyleViolations, 1)
	assert.Equal(t, RuleTrailingWhitespace, resp.StyleViolations[0].RuleCode)

	formatted, ok := resp.Formatted(model.SegmentPrelude)
	require.True(t, ok)
	assert.Equal(t, "import json\n", formatted)
	assert.Equal(t, "import json\nprint(json.dumps({}))\n", exec.last.Source, "the formatted program runs")

	require.Len(t, runs.runs, 1)
	assert.Equal(t, int64(7), runs.runs[0].ExampleID)
}

func TestExecute_FailureMapsErrors(t *testing.T) {
	exec := &fakeExecutor{result: &executor.Result{
		ExitCode: 1,
		Stderr:   "Traceback (most recent call last):\n  File \"<string>\", line 1, in <module>\nNameError: name 'y' is not defined\n",
	}}
	svc := NewExecutionService(exec, &fakeRunRepo{}, discardLogger())

	resp, err := svc.Execute(context.Background(), "python", model.ExecuteRequest{Title: "t", Code: "y\n"})
	require.NoError(t, err)

	assert.False(t, resp.Succeeded)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, model.RuntimeError{Segment: model.SegmentCode, Line: 1, Message: "NameError: name 'y' is not defined"}, resp.Errors[0])
}

func TestExecute_UnsavedExampleRecordsNoRun(t *testing.T) {
	runs := &fakeRunRepo{}
	svc := NewExecutionService(&fakeExecutor{result: &executor.Result{}}, runs, discardLogger())

	_, err := svc.Execute(context.Background(), "python", model.ExecuteRequest{BackendID: model.UnsavedID, Code: "1"})
	require.NoError(t, err)
	assert.Empty(t, runs.runs)
}

func TestExecute_RunRecordFailureIsNotFatal(t *testing.T) {
	runs := &fakeRunRepo{err: errors.New("disk full")}
	svc := NewExecutionService(&fakeExecutor{result: &executor.Result{}}, runs, discardLogger())

	_, err := svc.Execute(context.Background(), "python", model.ExecuteRequest{BackendID: 3, Code: "1"})
	assert.NoError(t, err)
}

func TestExecute_ExecutorUnavailable(t *testing.T) {
	svc := NewExecutionService(nil, &fakeRunRepo{}, discardLogger())
	_, err := svc.Execute(context.Background(), "python", model.ExecuteRequest{Code: "1"})
	assert.True(t, errors.Is(err, apperror.ErrTransient))

	broken := NewExecutionService(&fakeExecutor{err: errors.New("daemon gone")}, &fakeRunRepo{}, discardLogger())
	_, err = broken.Execute(context.Background(), "python", model.ExecuteRequest{Code: "1"})
	assert.True(t, errors.Is(err, apperror.ErrTransient))
}

func TestExecute_UnsupportedLanguage(t *testing.T) {
	exec := &fakeExecutor{err: executor.ErrUnsupportedLanguage}
	svc := NewExecutionService(exec, &fakeRunRepo{}, discardLogger())

	_, err := svc.Execute(context.Background(), "cobol", model.ExecuteRequest{Code: "1"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestAutoformat(t *testing.T) {
	svc := NewExecutionService(nil, nil, discardLogger())
	got := svc.Autoformat(model.ExecuteRequest{Prelude: "a \n", Code: "\tb", Postlude: ""})
	assert.Equal(t, &model.FormatResponse{Prelude: "a\n", Code: "    b\n", Postlude: ""}, got)
}
