package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/executor"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

// ExecutionService backs the execute and autoformat endpoints.
//
// EXECUTE PIPELINE:
//  1. autoformat each segment
//  2. lint the segments as submitted
//  3. validate the title
//  4. run prelude+code+postlude in the sandbox
//  5. map traceback lines back to {segment, line}
//
// Runs of saved examples (backendId > 0) are recorded so lists can show the
// latest output.
type ExecutionService struct {
	exec   executor.Executor
	runs   repository.RunRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutionService accepts a nil executor: the server then still lints
// and formats but reports execution as unavailable.
func NewExecutionService(exec executor.Executor, runs repository.RunRepository, logger *slog.Logger) *ExecutionService {
	return &ExecutionService{
		exec:   exec,
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
}

// Autoformat normalises the whitespace of every segment.
func (s *ExecutionService) Autoformat(req model.ExecuteRequest) *model.FormatResponse {
	return &model.FormatResponse{
		Prelude:  FormatSegment(req.Prelude),
		Code:     FormatSegment(req.Code),
		Postlude: FormatSegment(req.Postlude),
	}
}

// Execute runs an example and returns everything the editor needs to
// annotate it.
func (s *ExecutionService) Execute(ctx context.Context, language string, req model.ExecuteRequest) (*model.ExecuteResponse, error) {
	if language == "" {
		return nil, apperror.ValidationFailed("language", "language is required").WithCode(apperror.CodeBadExampleBody)
	}
	if s.exec == nil {
		return nil, apperror.Transient(errors.New("executor unavailable"))
	}

	formatted := s.Autoformat(req)
	resp := &model.ExecuteResponse{
		Images:            []model.Image{},
		StyleViolations:   []model.StyleViolation{},
		TitleViolations:   ValidateTitle(req.Title),
		FormattedPrelude:  &formatted.Prelude,
		FormattedCode:     &formatted.Code,
		FormattedPostlude: &formatted.Postlude,
	}
	if resp.TitleViolations == nil {
		resp.TitleViolations = []model.TitleViolation{}
	}
	for _, seg := range model.Segments {
		resp.StyleViolations = append(resp.StyleViolations, LintSegment(seg, req.Segment(seg))...)
	}

	// The formatted text is what runs, so traceback lines match what the
	// editor shows once it adopts the formatted segments.
	source, layout := concatenate(model.ExecuteRequest{
		Prelude:  formatted.Prelude,
		Code:     formatted.Code,
		Postlude: formatted.Postlude,
	})

	result, err := s.exec.Run(ctx, executor.Program{Language: language, Source: source})
	if err != nil {
		if errors.Is(err, executor.ErrUnsupportedLanguage) {
			return nil, apperror.ValidationFailed("language", err.Error()).WithCode(apperror.CodeBadExampleBody)
		}
		s.logger.Error("sandbox run failed",
			slog.String("language", language),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Transient(fmt.Errorf("executor unavailable: %w", err))
	}

	resp.Succeeded = result.Succeeded()
	resp.Output = result.Stdout + result.Stderr
	if !resp.Succeeded {
		resp.Errors = parseTraceback(result.Stderr, layout)
	}
	resp.PreludeSegments = outputSegments(formatted.Prelude, "")
	resp.CodeSegments = outputSegments(formatted.Code, result.Stdout)
	resp.PostludeSegments = outputSegments(formatted.Postlude, "")

	s.logger.Info("example executed",
		slog.Int64("backendId", req.BackendID),
		slog.Bool("succeeded", resp.Succeeded),
		slog.Int("styleViolations", len(resp.StyleViolations)),
		slog.Duration("duration", result.Duration),
	)

	if req.BackendID > 0 && s.runs != nil {
		run := &model.Run{
			ExampleID: req.BackendID,
			Succeeded: resp.Succeeded,
			Output:    resp.Output,
			RanAt:     s.now(),
		}
		// A run that cannot be recorded still returns its result.
		if err := s.runs.RecordRun(ctx, run); err != nil {
			s.logger.Warn("failed to record run",
				slog.Int64("backendId", req.BackendID),
				slog.String("error", err.Error()),
			)
		}
	}

	return resp, nil
}

// outputSegments presents a segment as its code followed by what it printed.
func outputSegments(code, output string) []model.OutputSegment {
	out := []model.OutputSegment{}
	if code != "" {
		out = append(out, model.OutputSegment{Type: "code", Content: code})
	}
	if output != "" {
		out = append(out, model.OutputSegment{Type: "output", Content: output})
	}
	return out
}
