package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
	"github.com/tonimelisma/cloudfiles-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the persistent flags bound on the root command.
type CLIFlags struct {
	ConfigPath string
	Username   string
	AuthURL    string
	ServiceNet bool
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is the per-invocation state every subcommand works from. It
// is built in PersistentPreRunE and travels in the command's context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run.
// Subcommands only run after that hook, so a missing value is a bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cli context not initialized")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command with all subcommands
// registered. Called once from main() and once per test.
func newRootCmd() *cobra.Command {
	flags := &CLIFlags{}

	cmd := &cobra.Command{
		Use:     "cloudfiles",
		Short:   "Cloud Files CLI client",
		Long:    "Manage containers, objects, and CDN publishing on a Rackspace Cloud Files account.",
		Version: version,
		// We print errors ourselves in main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadCLIContext(cmd, *flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.Username, "username", "", "account username (overrides config and environment)")
	pf.StringVar(&flags.AuthURL, "auth-url", "", "authentication endpoint (overrides region)")
	pf.BoolVar(&flags.ServiceNet, "servicenet", false, "use the internal ServiceNet storage endpoint")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable info logging")
	pf.BoolVar(&flags.Debug, "debug", false, "enable debug logging, including every HTTP exchange")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newRmdirCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newMetaCmd())
	cmd.AddCommand(newCDNCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadCLIContext resolves the effective configuration and installs the
// CLIContext on cmd.
func loadCLIContext(cmd *cobra.Command, flags CLIFlags) error {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	// Only flags the user actually set take part in the override chain.
	if cmd.Flags().Changed("username") {
		cli.Username = &flags.Username
	}

	if cmd.Flags().Changed("auth-url") {
		cli.AuthURL = &flags.AuthURL
	}

	if cmd.Flags().Changed("servicenet") {
		cli.ServiceNet = &flags.ServiceNet
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Stdin:  cmd.InOrStdin(),
	}
	cc.Logger = buildLogger(resolved.Logging, flags, cc.Stderr)

	cmd.SetContext(withCLIContext(cmd.Context(), cc))

	return nil
}

// buildLogger creates an slog.Logger from the logging config and CLI
// flags. The config level is the baseline; --verbose, --debug and --quiet
// override it because CLI flags always win. Format "auto" writes text to a
// terminal and JSON otherwise.
func buildLogger(cfg config.LoggingConfig, flags CLIFlags, w io.Writer) *slog.Logger {
	level := slog.LevelWarn

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	switch {
	case flags.Debug:
		level = slog.LevelDebug
	case flags.Verbose:
		level = slog.LevelInfo
	case flags.Quiet:
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := cfg.LogFormat
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitCode maps an error to the process exit status: 2 for bad usage or
// input, 3 for authentication problems, 1 for everything else.
func exitCode(err error) int {
	switch {
	case errors.Is(err, cloudfiles.ErrAuthenticationFailed),
		errors.Is(err, cloudfiles.ErrUnauthorizedAccess):
		return 3
	case errors.Is(err, cloudfiles.ErrInvalidArgument),
		errors.Is(err, cloudfiles.ErrInvalidContainerName),
		errors.Is(err, cloudfiles.ErrInvalidObjectName),
		errors.Is(err, cloudfiles.ErrInvalidMetadata),
		errors.Is(err, errUsage):
		return 2
	default:
		return 1
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCode(err))
}
