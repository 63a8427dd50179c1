package cmd

import (
	"fmt"

	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/systemd"
	"github.com/smazurov/prefork/internal/version"
	"github.com/spf13/cobra"
)

func (a *app) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running master and wait for it to exit",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.relay(cmd).Stop(cmd.Context())
		},
	}
}

func (a *app) reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running master to replace its workers",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.relay(cmd).Reload()
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	var unit string
	var userBus bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the master recorded in the PID file is alive",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			st := a.relay(cmd).Status()

			code := ExitOK
			switch {
			case st.Invalid != nil:
				fmt.Fprintf(out, "prefork status unknown: %v\n", st.Invalid)
				code = ExitFailure
			case st.Alive:
				fmt.Fprintf(out, "prefork is running (pid %d)\n", st.PID)
			case st.Stale:
				fmt.Fprintf(out, "prefork is not running (stale PID file for pid %d)\n", st.PID)
				code = ExitFailure
			default:
				fmt.Fprintln(out, "prefork is not running")
				code = ExitFailure
			}

			if unit != "" {
				a.printUnitState(cmd, unit, userBus)
			}
			if code != ExitOK {
				return exitCodeError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "systemd-unit", "", "Also report the state of this systemd unit")
	cmd.Flags().BoolVar(&userBus, "user", false, "Query the user service manager instead of the system one")
	return cmd
}

// printUnitState reports the unit state. Failing to reach systemd never
// changes the status exit code, which only reflects the PID file.
func (a *app) printUnitState(cmd *cobra.Command, unit string, userBus bool) {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	mgr, err := systemd.NewManager(ctx, userBus)
	if err != nil {
		logging.GetLogger("relay").Debug("systemd unavailable", "error", err)
		fmt.Fprintf(out, "systemd unit %s: unavailable\n", unit)
		return
	}
	defer mgr.Close()

	state, err := mgr.UnitState(ctx, unit)
	if err != nil {
		fmt.Fprintf(out, "systemd unit %s: %v\n", unit, err)
		return
	}
	fmt.Fprintf(out, "systemd unit %s: %s\n", unit, state)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  noArgs,
		// Printing the version must not depend on a readable config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
