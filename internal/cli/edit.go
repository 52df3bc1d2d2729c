package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
)

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <language> <package> <dir>",
		Short: "Edit the examples of a package as files",
		Long: `Open a package for editing and mirror its examples into a directory.

Every example is written to <dir>/<key>.yaml. Saving a file applies the
change and stores it after a short pause (client.save_delay). A new .yaml
file becomes a new example; removing one deletes its example. Touch
<key>.yaml.run to execute that example and print its annotations.

When someone else holds the lock, or takes it while you edit, the files are
read-only and changes to them are ignored. Ctrl-C stores pending edits and
ends the session.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.Context(), rootOpts, resourceArgs(args), args[2], cmd)
		},
	}
}

func runEdit(ctx context.Context, opts *RootOptions, res model.ResourceID, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		SaveDelay:      cfg.Client.SaveDelay,
		ReleaseOnClose: cfg.Client.ReleaseOnClose,
		Logger:         logger,
	})
	if err != nil {
		return fail(formatter, err)
	}
	// ctx is cancelled by Ctrl-C, which must not cancel the final release
	defer s.Close(context.Background())

	ws := newWorkspace(s, dir, formatter, logger)
	if err := ws.checkout(); err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "writing "+dir, err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "watching "+dir, err))
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "watching "+dir, err))
	}

	if s.Mode() == editor.ModeEdit {
		formatter.Notice("editing %s in %s (Ctrl-C to stop)", res, dir)
	} else {
		formatter.Notice("%s is locked by %s: files are read-only", res, orNobody(s.Owner()))
	}

	return ws.watch(ctx, watcher.Events, watcher.Errors, s.Subscribe())
}

// workspace mirrors a session into a directory of example files.
type workspace struct {
	session *editor.Session
	dir     string
	out     *OutputFormatter
	logger  *slog.Logger

	// files maps a file name to its example
	files    map[string]*editor.Example
	readOnly bool
}

func newWorkspace(s *editor.Session, dir string, out *OutputFormatter, logger *slog.Logger) *workspace {
	return &workspace{
		session:  s,
		dir:      dir,
		out:      out,
		logger:   logger,
		files:    make(map[string]*editor.Example),
		readOnly: s.Mode() != editor.ModeEdit,
	}
}

// checkout writes one file per visible example. The directory must not
// hold example files already: a stale copy would be taken for new examples.
func (w *workspace) checkout() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	existing, err := ListFiles(w.dir)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%s: %w", w.dir, errEmptyDir)
	}

	for _, e := range w.session.Visible(editor.DefaultFilter()) {
		name := e.Key() + FileExt
		if err := WriteFile(filepath.Join(w.dir, name), FileFromDocument(e.ToDocument())); err != nil {
			return err
		}
		w.files[name] = e
	}
	w.logger.Debug("checked out", slog.String("dir", w.dir), slog.Int("files", len(w.files)))
	return nil
}

// watch applies file events until ctx is done, then stores what is still
// pending.
func (w *workspace) watch(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, lost <-chan editor.ReadOnlyEvent) error {
	for {
		select {
		case <-ctx.Done():
			return w.finish()
		case ev, ok := <-events:
			if !ok {
				return w.finish()
			}
			w.handle(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		case ev, ok := <-lost:
			if !ok {
				lost = nil
				continue
			}
			w.readOnly = true
			w.out.Notice("%s is now edited by %s: files are read-only, further changes are ignored",
				ev.Resource, orNobody(ev.Owner))
		}
	}
}

// handle dispatches one file event.
func (w *workspace) handle(ctx context.Context, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	switch {
	case strings.HasSuffix(name, FileExt+RunSuffix):
		// touch on an existing file only changes its attributes
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Chmod) {
			w.run(ctx, strings.TrimSuffix(name, RunSuffix))
			if err := os.Remove(ev.Name); err != nil && !os.IsNotExist(err) {
				w.logger.Warn("removing run trigger", slog.String("file", name), slog.String("error", err.Error()))
			}
		}
	case strings.HasSuffix(name, FileExt):
		switch {
		case ev.Has(fsnotify.Remove):
			w.remove(name)
		case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
			w.apply(name)
		}
	}
}

func (w *workspace) apply(name string) {
	if w.readOnly {
		w.logger.Debug("ignoring change, read-only", slog.String("file", name))
		return
	}

	f, err := ReadFile(filepath.Join(w.dir, name))
	if err != nil {
		// editors write in several steps; the last write wins
		w.logger.Debug("skipping unreadable file", slog.String("file", name), slog.String("error", err.Error()))
		return
	}

	e, ok := w.files[name]
	if !ok {
		if e, err = w.session.New(); err != nil {
			w.report(name, err)
			return
		}
		w.files[name] = e
		w.out.Notice("%s: new example", name)
	}
	if err := Apply(e, f); err != nil {
		w.report(name, err)
	}
}

func (w *workspace) remove(name string) {
	e, ok := w.files[name]
	if !ok || w.readOnly {
		return
	}
	// some editors replace a file by removing it first
	if _, err := os.Stat(filepath.Join(w.dir, name)); err == nil {
		return
	}
	if err := e.Delete(); err != nil {
		w.report(name, err)
		return
	}
	delete(w.files, name)
	w.out.Notice("%s: deleted", name)
}

func (w *workspace) run(ctx context.Context, name string) {
	e, ok := w.files[name]
	if !ok {
		w.out.Notice("%s: no such example", name)
		return
	}
	before := e.ToDocument()
	result, err := e.Run(ctx)
	if err != nil {
		w.report(name, err)
		return
	}
	after := e.ToDocument()
	if err := w.out.Success(NewRunReport(after, result)); err != nil {
		w.logger.Warn("writing run report", slog.String("error", err.Error()))
	}

	// formatting was adopted: show it in the file
	if !before.ContentEqual(&after) {
		if err := WriteFile(filepath.Join(w.dir, name), FileFromDocument(after)); err != nil {
			w.report(name, err)
		}
	}
}

// finish stores pending edits so that Ctrl-C right after a write loses
// nothing.
func (w *workspace) finish() error {
	if w.readOnly || !w.session.HasUnsavedWork() {
		return nil
	}
	report, err := w.session.Push(context.Background())
	if err != nil {
		return fail(w.out, err)
	}
	w.out.Notice("stored %d example(s) on exit", len(report.Saved))
	if n := len(report.Blocked) + len(report.Failed); n > 0 {
		return fail(w.out, NewExitError(ExitFailure, fmt.Sprintf("%d example(s) were not stored", n)))
	}
	return nil
}

func (w *workspace) report(name string, err error) {
	if errors.Is(err, apperror.ErrReadOnly) {
		w.readOnly = true
	}
	w.out.Notice("%s: %v", name, err)
}
