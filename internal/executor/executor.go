// Package executor runs example programs in an isolated environment.
//
// The execution service concatenates an example's prelude, code and postlude
// into one Program; an Executor runs it and reports what came out. Mapping
// output back onto segments is the caller's job.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutExitCode is reported when a program is killed for running too long,
// matching the convention of the unix timeout command.
const TimeoutExitCode = 124

// ErrUnsupportedLanguage is returned for a language no runtime is configured for.
var ErrUnsupportedLanguage = errors.New("executor: unsupported language")

// Program is one concatenated example ready to run.
type Program struct {
	Language string
	Source   string
}

// Result is the output and status of one run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	TimedOut bool          `json:"timedOut"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports a clean exit.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Executor is implemented by the Docker sandbox and by test fakes.
type Executor interface {
	Run(ctx context.Context, prog Program) (*Result, error)
}

// Command returns the argv that runs source for language inside the sandbox.
func Command(language, source string) ([]string, error) {
	switch language {
	case "python", "python3":
		return []string{"python", "-c", source}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}
