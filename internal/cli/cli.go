package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks argument problems that map to ExitUsage.
type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFile    string
}

// Run executes the CLI and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return ExitUsage
	}
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var usage *usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintln(stderr)
		if cmd, _, findErr := root.Find(args); findErr == nil && cmd != nil {
			_ = cmd.Usage()
		} else {
			_ = root.Usage()
		}
		return ExitUsage
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitError
}

// exitError carries a specific exit code for an already-reported failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "irmemo",
		Short:         "Stream investment memo generation from the memo backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (default: search for .irmemo/config.yml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Write logs to this file")

	root.AddCommand(
		newInitCommand(flags),
		newValidateCommand(flags),
		newGenerateCommand(flags),
		newRegenerateCommand(flags),
		newReplayCommand(flags),
		newHistoryCommand(flags),
		newShowCommand(flags),
	)
	return root
}

// noArgs rejects positional arguments as a usage error.
func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected arguments: %v", args)
	}
	return nil
}

// exactArgs requires n positional arguments.
func exactArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("expected %d argument(s), got %d", n, len(args))
		}
		return nil
	}
}
