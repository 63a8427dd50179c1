// Package cmd implements the prefork command line.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smazurov/prefork/internal/config"
	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/pidfile"
	"github.com/smazurov/prefork/internal/relay"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ErrUsage marks a missing or unknown command, or malformed arguments.
var ErrUsage = errors.New("usage error")

// exitCodeError carries an exit code chosen by a command that already
// reported its outcome.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// app holds the state shared by every subcommand of one invocation.
type app struct {
	opts config.Options
	// raw arguments without argv[0], replayed by `start -d`
	args []string
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}

// Run runs the CLI with args and returns the exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	a := &app{args: args}
	root, err := a.rootCmd()
	if err != nil {
		fmt.Fprintf(stderr, "prefork: %v\n", err)
		return ExitFailure
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteC()
	return exitCode(cmd, err, stdout, stderr)
}

func exitCode(cmd *cobra.Command, err error, stdout, stderr io.Writer) int {
	if err == nil {
		return ExitOK
	}

	var coded exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}

	if errors.Is(err, ErrUsage) {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		if cmd != nil {
			fmt.Fprint(stdout, cmd.UsageString())
		}
		return ExitUsage
	}

	fmt.Fprintf(stderr, "prefork: %v\n", err)
	return ExitFailure
}

func (a *app) rootCmd() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:   "prefork",
		Short: "Single-host prefork process supervisor",
		Long: `prefork runs a master process that keeps a fixed pool of worker processes
alive. The master is controlled through its PID file and POSIX signals:
stop sends SIGINT, reload sends SIGUSR1.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
			}
			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return fmt.Errorf("%w: missing command", ErrUsage)
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadOptions(cmd)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})
	root.CompletionOptions.DisableDefaultCmd = true

	if err := config.BindFlags(root.PersistentFlags(), &a.opts); err != nil {
		return nil, err
	}

	root.AddCommand(
		a.startCmd(),
		a.stopCmd(),
		a.reloadCmd(),
		a.statusCmd(),
		a.versionCmd(),
		a.workerCmd(),
	)
	return root, nil
}

// loadOptions layers the config file and environment under the flags the
// user actually passed, then validates the result and sets up logging.
func (a *app) loadOptions(cmd *cobra.Command) error {
	if err := config.LoadConfig(&a.opts, cmd); err != nil {
		return err
	}
	if err := a.opts.Validate(); err != nil {
		return err
	}
	logging.Initialize(a.opts.Logging())
	return nil
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %q accepts no arguments, got %q", ErrUsage, cmd.Name(), args[0])
	}
	return nil
}

func (a *app) relay(cmd *cobra.Command) *relay.Relay {
	return relay.New(
		pidfile.New(a.opts.PidFile),
		relay.WithStopTimeout(a.opts.StopTimeout, a.opts.PollInterval),
		relay.WithOutput(cmd.OutOrStdout()),
	)
}
