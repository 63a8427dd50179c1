package worker

import (
	"context"
	"os"

	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/process"
	"github.com/smazurov/prefork/internal/supervisor"
)

// Task is one unit of worker payload. Run should return promptly once ctx is done.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runtime is the main loop of a worker process: check control signals, run
// one unit of work, repeat.
type Runtime struct {
	task      Task
	logger    logging.Logger
	masterPID int
	signals   chan os.Signal
	install   bool

	status process.Status
	units  int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithMasterPID makes the worker exit once it is no longer parented by pid.
func WithMasterPID(pid int) Option {
	return func(r *Runtime) {
		r.masterPID = pid
	}
}

// WithSignals feeds control signals from ch instead of installing process
// signal handlers.
func WithSignals(ch chan os.Signal) Option {
	return func(r *Runtime) {
		r.signals = ch
		r.install = false
	}
}

// New creates a worker runtime for task.
func New(task Task, opts ...Option) *Runtime {
	r := &Runtime{
		task:    task,
		logger:  logging.GetLogger("worker"),
		signals: make(chan os.Signal, 4),
		install: true,
		status:  process.StatusStarting,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the runtime status. Only meaningful from the goroutine running Run.
func (r *Runtime) Status() process.Status {
	return r.status
}

// Run executes units of work until an exit signal is dispatched, ctx is done,
// or the master disappears. It returns the process exit code.
func (r *Runtime) Run(ctx context.Context) int {
	if r.install {
		defer supervisor.Install(r.signals)()
	}

	// Exit signals also cancel the unit in flight; they are acted upon at
	// the next dispatch point.
	unitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make(chan os.Signal, cap(r.signals)+1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-r.signals:
				if supervisor.Decide(sig, process.RoleWorker) == supervisor.ActionExit {
					cancel()
				}
				select {
				case pending <- sig:
				case <-done:
					return
				}
			}
		}
	}()

	r.status = process.StatusRunning
	r.logger.Info("Worker started", "pid", os.Getpid(), "master_pid", r.masterPID)

	for {
		if r.dispatch(pending) {
			r.logger.Info("Worker exiting", "pid", os.Getpid(), "units", r.units)
			return 0
		}
		if unitCtx.Err() != nil {
			// Cancelled by ctx or by an exit signal the forwarder has not queued yet.
			r.status = process.StatusShuttingDown
			r.logger.Info("Worker exiting", "pid", os.Getpid(), "units", r.units)
			return 0
		}
		if r.orphaned() {
			r.logger.Warn("Master is gone, worker exiting", "master_pid", r.masterPID)
			return 1
		}

		if err := r.task.Run(unitCtx); err != nil && unitCtx.Err() == nil {
			r.logger.Warn("Unit of work failed", "error", err)
		}
		r.units++
	}
}

// dispatch handles pending control signals. It reports whether the worker should exit.
func (r *Runtime) dispatch(pending <-chan os.Signal) bool {
	for {
		select {
		case sig := <-pending:
			switch supervisor.Decide(sig, process.RoleWorker) {
			case supervisor.ActionExit:
				r.status = process.StatusShuttingDown
				r.logger.Debug("Exit requested", "signal", sig)
				return true
			default:
				r.logger.Debug("Ignoring signal", "signal", sig)
			}
		default:
			return false
		}
	}
}

func (r *Runtime) orphaned() bool {
	return r.masterPID > 0 && os.Getppid() != r.masterPID
}
