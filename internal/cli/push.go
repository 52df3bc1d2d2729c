package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Run bool
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push <language> <package> <dir>",
		Short: "Store every example file of a directory in one pass",
		Long: `Push the *.yaml example files of a directory to a package.

Files with an id update that example; files without one create a new
example and get the new id written back. New examples are stored first,
then updates. With --run every changed example is executed first and a
failed run keeps that example from being stored.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), opts, resourceArgs(args), args[2], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Run, "run", false, "execute changed examples before storing them")

	return cmd
}

func runPush(ctx context.Context, opts *PushOptions, res model.ResourceID, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	paths, err := ListFiles(dir)
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "reading "+dir, err))
	}
	cfg, err := opts.load()
	if err != nil {
		return fail(formatter, err)
	}
	logger := opts.logger(cmd.ErrOrStderr())
	client, identity, err := opts.connect(ctx, cfg, logger)
	if err != nil {
		return fail(formatter, err)
	}

	s, err := editor.Open(ctx, client, res, identity, editor.Options{
		Logger:         logger,
		ReleaseOnClose: cfg.Client.ReleaseOnClose,
	})
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close(ctx)

	summary, err := pushFiles(ctx, s, paths, opts.Run)
	if err != nil {
		return fail(formatter, err)
	}
	if err := formatter.Success(summary); err != nil {
		return err
	}
	if n := summary.Failed(); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) not stored", n))
	}
	return nil
}

// pushFiles applies each file to s, pushes the session and writes the ids
// of created examples back into their files. Rows come back in file order.
func pushFiles(ctx context.Context, s *editor.Session, paths []string, run bool) (*PushSummary, error) {
	if s.Mode() != editor.ModeEdit {
		return nil, apperror.ReadOnly(s.Owner())
	}

	byID := make(map[int64]*editor.Example)
	for _, e := range s.Examples() {
		byID[e.ToDocument().BackendID] = e
	}

	summary := &PushSummary{Resource: s.Resource().String(), Files: make([]PushRow, len(paths))}
	files := make([]File, len(paths))
	targets := make(map[*editor.Example]int)

	for i, path := range paths {
		row := &summary.Files[i]
		row.File = filepath.Base(path)

		f, err := ReadFile(path)
		if err != nil {
			row.Result, row.Error = "failed", err.Error()
			continue
		}
		files[i] = f
		row.ID = f.ID

		var e *editor.Example
		if f.ID > 0 {
			var ok bool
			if e, ok = byID[f.ID]; !ok {
				row.Result = "failed"
				row.Error = fmt.Sprintf("no example %d in %s", f.ID, s.Resource())
				continue
			}
		} else if e, err = s.New(); err != nil {
			return nil, err
		}
		if err := Apply(e, f); err != nil {
			row.Result, row.Error = "failed", err.Error()
			continue
		}
		targets[e] = i

		if run && e.Snapshot().Dirty {
			if _, err := e.Run(ctx); err != nil {
				return nil, fmt.Errorf("running %s: %w", row.File, err)
			}
		}
	}

	// positions in the pushed collection, mapped back to files
	examples := s.Examples()
	report, err := s.Push(ctx)
	if err != nil {
		return nil, err
	}
	outcome := func(positions []int, result string) {
		for _, pos := range positions {
			if i, ok := targets[examples[pos]]; ok {
				summary.Files[i].Result = result
			}
		}
	}
	outcome(report.Plan.Unchanged, "unchanged")
	outcome(report.Blocked, "blocked")
	outcome(report.Skipped, "skipped")
	for pos, perr := range report.Failed {
		if i, ok := targets[examples[pos]]; ok {
			summary.Files[i].Result, summary.Files[i].Error = "failed", perr.Error()
		}
	}

	for _, pos := range report.Saved {
		e := examples[pos]
		i, ok := targets[e]
		if !ok {
			continue
		}
		row := &summary.Files[i]
		doc := e.ToDocument()
		row.Result = "updated"
		if files[i].ID <= 0 {
			row.Result = "created"
			files[i].ID = doc.BackendID
			if err := WriteFile(paths[i], files[i]); err != nil {
				row.Error = "stored, but writing the id back failed: " + err.Error()
			}
		}
		row.ID = doc.BackendID
	}
	for i := range summary.Files {
		if summary.Files[i].Result == "" {
			summary.Files[i].Result = "unchanged"
		}
	}
	return summary, nil
}
