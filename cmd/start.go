package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/prefork/internal/config"
	"github.com/smazurov/prefork/internal/daemonize"
	"github.com/smazurov/prefork/internal/events"
	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/metrics"
	"github.com/smazurov/prefork/internal/pidfile"
	"github.com/smazurov/prefork/internal/process"
	"github.com/smazurov/prefork/internal/supervisor"
	"github.com/smazurov/prefork/internal/systemd"
	"github.com/smazurov/prefork/internal/worker"
	"github.com/spf13/cobra"
)

const (
	detachReadyTimeout = 5 * time.Second
	detachPoll         = 20 * time.Millisecond
)

func (a *app) startCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the master and its worker pool",
		Long: `Start becomes the master in the foreground, or with -d hands the master
to a detached background process and returns once its PID file is written.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.relay(cmd).Start(); err != nil {
				return err
			}
			if detach && !daemonize.IsDaemonized() {
				return a.detach(cmd)
			}
			return a.runMaster(cmd)
		},
	}
	cmd.Flags().BoolVarP(&detach, "daemon", "d", false, "Run the master in the background")
	return cmd
}

// detach re-executes the invocation in a new session and waits until the
// background master has recorded itself or died trying.
func (a *app) detach(cmd *cobra.Command) error {
	proc, err := daemonize.Detach(a.args, a.opts.StdoutFile)
	if err != nil {
		return err
	}

	exited := make(chan error, 1)
	go func() {
		state, waitErr := proc.Wait()
		if waitErr == nil {
			waitErr = fmt.Errorf("background master exited: %s", state)
		}
		exited <- waitErr
	}()

	store := pidfile.New(a.opts.PidFile)
	var exitErr error
	ready := func() bool {
		select {
		case exitErr = <-exited:
			return true
		default:
		}
		pid, ok, _ := store.Read()
		return ok && pid == proc.Pid
	}

	if err := process.WaitUntil(cmd.Context(), ready, detachReadyTimeout, detachPoll); err != nil {
		return fmt.Errorf("background master (pid %d) did not become ready: %w", proc.Pid, err)
	}
	if exitErr != nil {
		return exitErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "prefork started in background (pid %d)\n", proc.Pid)
	return nil
}

// runMaster turns the current process into the master and blocks until it stops.
func (a *app) runMaster(cmd *cobra.Command) error {
	logger := logging.GetLogger("supervisor")
	base := a.opts

	daemonize.SetProcessTitle("prefork: master")

	// Worker settings are swapped on reload; the master's own settings are not.
	var current atomic.Pointer[config.Options]
	current.Store(&base)

	masterPID := os.Getpid()
	spawner := process.SpawnerFunc(func() (int, error) {
		opts := current.Load()
		return process.NewExecSpawner(opts.WorkerArgs(), []string{worker.MasterEnv(masterPID)}).Spawn()
	})

	bus := events.New()
	notifier := systemd.NewNotifier()
	defer bus.Subscribe(func(e events.StatusChangedEvent) {
		if err := notifier.Status(fmt.Sprintf("master %s", e.New)); err != nil {
			logger.Debug("Failed to send systemd status", "error", err)
		}
	})()

	if base.MetricsTextfile != "" {
		collector := metrics.New(base.Workers, base.MetricsTextfile)
		defer func() {
			if err := collector.RemoveTextfile(); err != nil {
				logger.Warn("Failed to remove metrics textfile", "error", err)
			}
		}()
		defer collector.Attach(bus)()
	}

	sup := supervisor.New(supervisor.Options{
		Workers:         base.Workers,
		Spawner:         spawner,
		PIDFile:         pidfile.New(base.PidFile),
		GracePeriod:     base.GracePeriod,
		ReloadTimeout:   base.ReloadTimeout,
		SpawnBackoff:    base.SpawnBackoff,
		SpawnBackoffMax: base.SpawnBackoffMax,
		Bus:             bus,
		Notifier:        notifier,
		Logger:          logger,
		Redirect: func() error {
			if !daemonize.IsDaemonized() {
				return nil
			}
			return daemonize.RedirectStdio(base.StdoutFile)
		},
		BeforeReload: func() {
			next, err := a.reloadOptions(cmd, *current.Load())
			if err != nil {
				logger.Warn("Keeping previous worker settings", "error", err)
				return
			}
			if next.Workers != base.Workers {
				logger.Warn("Worker count changes take effect on restart",
					"configured", next.Workers, "running", base.Workers)
				next.Workers = base.Workers
			}
			current.Store(&next)
		},
	})

	if base.WatchConfig {
		stop, err := a.watchConfig(cmd, sup, logger)
		if err != nil {
			logger.Warn("Config watcher disabled", "path", base.Config, "error", err)
		} else {
			defer stop()
		}
	}

	err := sup.Run(cmd.Context())
	if errors.Is(err, supervisor.ErrEnvironment) {
		return fmt.Errorf("cannot supervise workers here: %w", err)
	}
	return err
}

// reloadOptions re-reads the config file on top of prev. Flags given on the
// command line keep winning.
func (a *app) reloadOptions(cmd *cobra.Command, prev config.Options) (config.Options, error) {
	next := prev
	if err := config.LoadConfig(&next, cmd); err != nil {
		return prev, err
	}
	if err := next.Validate(); err != nil {
		return prev, err
	}
	return next, nil
}

// watchConfig reloads the pool whenever the config file changes to something valid.
func (a *app) watchConfig(cmd *cobra.Command, sup *supervisor.Supervisor, logger *slog.Logger) (func(), error) {
	loader := func(path string) (config.Options, error) {
		next := a.opts
		next.Config = path
		return a.reloadOptions(cmd, next)
	}
	watcher := config.NewConfigWatcher(a.opts.Config, loader, logger,
		config.WithErrorHandler[config.Options](func(err error) {
			logger.Warn("Ignoring invalid config change", "error", err)
		}),
	)
	watcher.OnReload(func(config.Options) {
		logger.Info("Config file changed, reloading workers", "path", a.opts.Config)
		sup.Signal(syscall.SIGUSR1)
	})
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return func() {
		if err := watcher.Stop(); err != nil {
			logger.Debug("Config watcher stop failed", "error", err)
		}
	}, nil
}
