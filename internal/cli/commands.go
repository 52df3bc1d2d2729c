package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/editor"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/remote"
)

// fail reports err through the formatter and returns it with an exit code.
// Errors that already carry a code keep it; store and login failures are
// command errors, everything else is a failure of the work itself.
func fail(f *OutputFormatter, err error) error {
	code := ExitFailure
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		code = exitErr.Code
	case errors.Is(err, apperror.ErrTransient), errors.Is(err, apperror.ErrUnauthorized):
		code = ExitCommandError
	}
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return WrapExitError(code, ErrorCode(err), err)
}

func resourceArgs(args []string) model.ResourceID {
	return model.ResourceID{Language: args[0], Package: args[1]}
}

// =========================================================================
// LOGIN
// =========================================================================

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
	Register bool
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange email and password for a token",
		Long: `Log in to the example store and print a token.

Export it as AUTHOR_CLIENT_TOKEN (or set client.token in the config file)
so later commands do not need the password.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (default client.email)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password (default client.password)")
	cmd.Flags().BoolVar(&opts.Register, "register", false, "create the account first")

	return cmd
}

// LoginResult is the result of login.
type LoginResult struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

func (r *LoginResult) String() string {
	return r.Token
}

func runLogin(ctx context.Context, opts *LoginOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.load()
	if err != nil {
		return fail(formatter, err)
	}
	email, password := opts.Email, opts.Password
	if email == "" {
		email = cfg.Client.Email
	}
	if password == "" {
		password = cfg.Client.Password
	}
	if email == "" || password == "" {
		return fail(formatter, NewExitError(ExitCommandError, "--email and --password are required"))
	}

	client := remote.New(cfg.Client.BaseURL,
		remote.WithTimeout(cfg.Client.RequestTimeout),
		remote.WithLogger(opts.logger(cmd.ErrOrStderr())),
	)
	authenticate := client.Login
	if opts.Register {
		authenticate = client.Register
	}
	u, err := authenticate(ctx, email, password)
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "logging in", err))
	}

	formatter.VerboseLog("logged in as %s", u.Email)
	return formatter.Success(&LoginResult{Email: u.Email, Token: client.Token()})
}

// =========================================================================
// PACKAGES
// =========================================================================

// NewPackagesCommand creates the packages command.
func NewPackagesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "packages",
		Short:         "List packages with examples and who is editing them",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			cfg, err := rootOpts.load()
			if err != nil {
				return fail(formatter, err)
			}
			client, _, err := rootOpts.connect(cmd.Context(), cfg, rootOpts.logger(cmd.ErrOrStderr()))
			if err != nil {
				return fail(formatter, err)
			}
			summaries, err := client.Packages(cmd.Context())
			if err != nil {
				return fail(formatter, err)
			}
			if summaries == nil {
				summaries = []model.PackageSummary{}
			}
			return formatter.Success(&PackageList{Packages: summaries})
		},
	}
}

// =========================================================================
// LIST
// =========================================================================

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status  string
	Release bool
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <language> <package>",
		Short: "Take the edit lock of a package and list its examples",
		Long: `List the examples of a package.

Listing takes the package's edit lock when nobody else holds it, exactly
like opening it for editing. Pass --release to give it back afterwards.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts, resourceArgs(args), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only show these statuses (comma separated)")
	cmd.Flags().BoolVar(&opts.Release, "release", false, "release the edit lock after listing")

	return cmd
}

func runList(ctx context.Context, opts *ListOptions, res model.ResourceID, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	filter := editor.DefaultFilter()
	if opts.Status != "" {
		var err error
		if filter, err = editor.ParseFilter(opts.Status); err != nil {
			return fail(formatter, WrapExitError(ExitCommandError, "invalid --status", err))
		}
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

	s, err := editor.Open(ctx, client, res, identity, editor.Options{Logger: logger})
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close(ctx)

	if opts.Release && s.Mode() == editor.ModeEdit {
		if err := s.Release(ctx); err != nil {
			return fail(formatter, err)
		}
		formatter.VerboseLog("released %s", res)
	}
	return formatter.Success(NewExampleList(s, s.Visible(filter), filter))
}

// =========================================================================
// MODERATE
// =========================================================================

// ModerateOptions holds flags for the moderate command.
type ModerateOptions struct {
	*RootOptions
	Status string
}

// NewModerateCommand creates the moderate command.
func NewModerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ModerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "moderate",
		Short:         "List examples of every package by status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			filter, err := editor.ParseFilter(opts.Status)
			if err != nil {
				return fail(formatter, WrapExitError(ExitCommandError, "invalid --status", err))
			}
			cfg, err := opts.load()
			if err != nil {
				return fail(formatter, err)
			}
			logger := opts.logger(cmd.ErrOrStderr())
			client, identity, err := opts.connect(cmd.Context(), cfg, logger)
			if err != nil {
				return fail(formatter, err)
			}

			s, err := editor.OpenModeration(cmd.Context(), client, identity, filter, editor.Options{Logger: logger})
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close(cmd.Context())
			return formatter.Success(NewExampleList(s, s.Examples(), s.Filter()))
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "pending_review", "statuses to query (comma separated)")

	return cmd
}

// =========================================================================
// RUN
// =========================================================================

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "run <language> <package> <id>",
		Short:         "Execute one stored example and print its annotations",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			id, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || id <= 0 {
				return fail(formatter, NewExitError(ExitCommandError, fmt.Sprintf("invalid example id %q", args[2])))
			}
			cfg, err := rootOpts.load()
			if err != nil {
				return fail(formatter, err)
			}
			logger := rootOpts.logger(cmd.ErrOrStderr())
			client, identity, err := rootOpts.connect(cmd.Context(), cfg, logger)
			if err != nil {
				return fail(formatter, err)
			}

			s, err := editor.Open(cmd.Context(), client, resourceArgs(args), identity, editor.Options{Logger: logger})
			if err != nil {
				return fail(formatter, err)
			}
			defer s.Close(cmd.Context())

			report, err := runExample(cmd.Context(), s, id)
			if err != nil {
				return fail(formatter, err)
			}
			if err := formatter.Success(report); err != nil {
				return err
			}
			if !report.Succeeded {
				return NewExitError(ExitFailure, "run failed")
			}
			return nil
		},
	}
}

// runExample runs the example with backend id in s. Formatting it gets back
// is not saved: the session is closed without a push.
func runExample(ctx context.Context, s *editor.Session, id int64) (*RunReport, error) {
	for _, e := range s.Examples() {
		doc := e.ToDocument()
		if doc.BackendID != id {
			continue
		}
		result, err := e.Run(ctx)
		if err != nil {
			return nil, err
		}
		return NewRunReport(doc, result), nil
	}
	return nil, apperror.NotFound("example", strconv.FormatInt(id, 10))
}
