package cmd

import (
	"github.com/smazurov/prefork/internal/config"
	"github.com/smazurov/prefork/internal/daemonize"
	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/worker"
	"github.com/spf13/cobra"
)

// workerCmd is what the master re-executes for each pool slot.
func (a *app) workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker (started by the master)",
		Hidden: true,
		Args:   noArgs,
		// The master passes its resolved settings as flags. Reading the config
		// file or validating master-only settings here could fail every spawn.
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := a.opts.ValidateWorker(); err != nil {
				return err
			}
			logging.Initialize(a.opts.Logging())
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.GetLogger("worker")
			daemonize.SetProcessTitle("prefork: worker")

			task, err := newTask(a.opts)
			if err != nil {
				return err
			}

			rt := worker.New(task,
				worker.WithLogger(logger),
				worker.WithMasterPID(worker.MasterPIDFromEnv()),
			)
			if code := rt.Run(cmd.Context()); code != ExitOK {
				return exitCodeError{code: code}
			}
			return nil
		},
	}
}

func newTask(opts config.Options) (worker.Task, error) {
	if opts.WorkerTask == config.TaskCommand {
		task, err := worker.NewCommandTask(opts.WorkerCommand, logging.GetLogger("worker"),
			worker.WithGracefulTimeout(opts.GracePeriod))
		if err != nil {
			return nil, err
		}
		return task, nil
	}
	return worker.SleepTask{Interval: opts.WorkerInterval}, nil
}
