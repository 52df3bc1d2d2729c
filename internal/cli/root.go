// Package cli is the author command: it opens editing sessions against an
// example store and maps them onto files, tables and exit codes.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sakif/example-author/internal/config"
	"github.com/sakif/example-author/internal/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	BaseURL    string

	// viper carries the flags bound by the command that is running.
	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the author CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "author",
		Short: "Author and review code examples",
		Long: "Edit the examples of one package under its edit lock, run them in the\n" +
			"store's sandbox, and review examples across packages by status.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				invalid := opts.Format
				opts.Format = "text"
				return fail(opts.formatter(cmd), NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", invalid, ValidFormats)))
			}
			v, err := config.NewViper(opts.ConfigFile)
			if err != nil {
				return fail(opts.formatter(cmd), WrapExitError(ExitCommandError, "loading configuration", err))
			}
			if err := v.BindPFlag("client.base_url", cmd.Root().PersistentFlags().Lookup("url")); err != nil {
				return fail(opts.formatter(cmd), WrapExitError(ExitCommandError, "binding flags", err))
			}
			opts.viper = v
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "url", "", "example store URL (overrides client.base_url)")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewPackagesCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewModerateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger writes text logs to w, at debug level with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// load decodes the configuration prepared by PersistentPreRunE.
func (o *RootOptions) load() (*config.Config, error) {
	v := o.viper
	if v == nil {
		var err error
		if v, err = config.NewViper(o.ConfigFile); err != nil {
			return nil, WrapExitError(ExitCommandError, "loading configuration", err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading configuration", err)
	}
	return cfg, nil
}

// connect returns a client authenticated with the configured token, or by
// logging in with the configured email and password, and the identity it
// acts as.
func (o *RootOptions) connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*remote.Client, string, error) {
	c := remote.New(cfg.Client.BaseURL,
		remote.WithTimeout(cfg.Client.RequestTimeout),
		remote.WithToken(cfg.Client.Token),
		remote.WithLogger(logger),
	)

	if cfg.Client.Token == "" {
		if cfg.Client.Email == "" || cfg.Client.Password == "" {
			return nil, "", NewExitError(ExitCommandError,
				"not logged in: set client.token (AUTHOR_CLIENT_TOKEN) or client.email and client.password")
		}
		u, err := c.Login(ctx, cfg.Client.Email, cfg.Client.Password)
		if err != nil {
			return nil, "", WrapExitError(ExitCommandError, "logging in", err)
		}
		return c, u.Email, nil
	}

	u, err := c.Me(ctx)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "checking token", err)
	}
	return c, u.Email, nil
}
