package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/prefork/internal/events"
	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/pidfile"
	"github.com/smazurov/prefork/internal/process"
)

var (
	// ErrEnvironment is returned when the master cannot run on this host.
	ErrEnvironment = errors.New("unsupported environment")

	// ErrWorkerCrashed is reported when workers die right after being spawned.
	ErrWorkerCrashed = errors.New("worker crashed on start")
)

const (
	controlBuffer = 8
	reapInterval  = 10 * time.Millisecond
	killWait      = 2 * time.Second
)

// Notifier is told about master lifecycle transitions (systemd sd_notify).
type Notifier interface {
	Ready() error
	Reloading() error
	Stopping() error
}

type noopNotifier struct{}

func (noopNotifier) Ready() error     { return nil }
func (noopNotifier) Reloading() error { return nil }
func (noopNotifier) Stopping() error  { return nil }

// Options configures a Supervisor.
type Options struct {
	Workers int
	Spawner process.Spawner
	PIDFile *pidfile.Store

	GracePeriod     time.Duration
	ReloadTimeout   time.Duration
	SpawnBackoff    time.Duration
	SpawnBackoffMax time.Duration

	Bus      *events.Bus
	Notifier Notifier
	Logger   *slog.Logger

	// Redirect is called once after the initial pool is up, before the loop starts.
	Redirect func() error
	// BeforeReload runs after the old workers are gone and before new ones are spawned.
	BeforeReload func()
	// NoSignalHandlers leaves process signal dispositions alone; control
	// signals then only arrive through Signal.
	NoSignalHandlers bool
}

// State is an immutable snapshot of the master published after every change.
type State struct {
	Status     process.Status
	MasterPID  int
	Workers    []int
	Generation int
}

// Supervisor is the master: it owns the worker set and reacts to control signals.
// All supervision state is owned by the goroutine executing Run.
type Supervisor struct {
	opts     Options
	logger   *slog.Logger
	notifier Notifier

	status     process.Status
	masterPID  int
	workers    WorkerSet
	generation int

	// PIDs the master is terminating on purpose
	terminating map[int]bool
	// spawn time of every registered worker
	started map[int]time.Time
	// a worker died within one spawn backoff of starting
	earlyExit bool
	// backoff keeps growing until a worker outlives the minimum uptime
	crashLoop bool

	control chan os.Signal
	sigchld chan os.Signal

	backoff time.Duration
	retry   *time.Timer
	retryC  <-chan time.Time

	state atomic.Pointer[State]
}

// New creates a supervisor. It does not touch the process until Run.
func New(opts Options) *Supervisor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = time.Second
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 10 * time.Second
	}
	if opts.SpawnBackoff <= 0 {
		opts.SpawnBackoff = 500 * time.Millisecond
	}
	if opts.SpawnBackoffMax < opts.SpawnBackoff {
		opts.SpawnBackoffMax = opts.SpawnBackoff
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("supervisor")
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	s := &Supervisor{
		opts:        opts,
		logger:      logger,
		notifier:    notifier,
		status:      process.StatusStarting,
		terminating: make(map[int]bool),
		started:     make(map[int]time.Time),
		control:     make(chan os.Signal, controlBuffer),
		sigchld:     make(chan os.Signal, 1),
	}
	s.publishState()
	return s
}

// CheckEnvironment verifies the host can run a master: a unix platform and a
// resolvable executable for re-spawning workers.
func CheckEnvironment() error {
	switch runtime.GOOS {
	case "windows", "plan9", "js", "wasip1":
		return fmt.Errorf("%w: %s has no POSIX signals", ErrEnvironment, runtime.GOOS)
	}
	if _, err := os.Executable(); err != nil {
		return fmt.Errorf("%w: cannot resolve own executable: %w", ErrEnvironment, err)
	}
	return nil
}

// State returns the latest published snapshot. Safe to call from any goroutine.
func (s *Supervisor) State() State {
	return *s.state.Load()
}

// Signal enqueues sig as if it had been delivered to the master. It is how
// internal triggers such as the config watcher request a reload. It never blocks.
func (s *Supervisor) Signal(sig os.Signal) {
	select {
	case s.control <- sig:
	default:
		s.logger.Warn("Control queue full, dropping signal", "signal", sig)
	}
}

// Run starts the master and blocks until it stops. A nil return means a clean
// stop: workers terminated and PID file removed. Context cancellation is
// handled as a stop request.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := CheckEnvironment(); err != nil {
		return err
	}

	s.masterPID = os.Getpid()
	if err := s.opts.PIDFile.Write(s.masterPID); err != nil {
		return err
	}
	s.logger.Info("Master started", "pid", s.masterPID, "pid_file", s.opts.PIDFile.Path(), "workers", s.opts.Workers)

	signal.Notify(s.sigchld, syscall.SIGCHLD)
	defer signal.Stop(s.sigchld)
	if !s.opts.NoSignalHandlers {
		defer Install(s.control)()
	}

	if err := s.keepWorkerCount(); err != nil {
		s.logger.Error("Failed to start worker pool", "error", err)
		s.terminate(context.WithoutCancel(ctx), s.workers.PIDs())
		s.workers.Clear()
		if rmErr := s.opts.PIDFile.Remove(); rmErr != nil {
			s.logger.Warn("Failed to remove PID file", "error", rmErr)
		}
		return err
	}

	if s.opts.Redirect != nil {
		if err := s.opts.Redirect(); err != nil {
			s.logger.Warn("Failed to redirect standard streams", "error", err)
		}
	}

	s.setStatus(process.StatusRunning)
	if err := s.notifier.Ready(); err != nil {
		s.logger.Debug("Readiness notification failed", "error", err)
	}

	return s.loop(ctx)
}

func (s *Supervisor) loop(ctx context.Context) error {
	// Stop handling must finish even though ctx may be what triggered it.
	stopCtx := context.WithoutCancel(ctx)

	for {
		if s.dispatch(stopCtx) {
			return nil
		}

		childChanged := false
		select {
		case <-s.sigchld:
			childChanged = true
		case sig := <-s.control:
			if s.handle(stopCtx, sig) {
				return nil
			}
		case <-s.retryC:
			s.retry = nil
			s.retryC = nil
			childChanged = true
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping master")
			s.stop(stopCtx)
			return nil
		}

		if s.dispatch(stopCtx) {
			return nil
		}

		if childChanged {
			s.maintain()
		}
	}
}

// dispatch handles every pending control signal without blocking.
// It reports whether the master stopped.
func (s *Supervisor) dispatch(ctx context.Context) bool {
	for {
		select {
		case sig := <-s.control:
			if s.handle(ctx, sig) {
				return true
			}
		default:
			return false
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, sig os.Signal) bool {
	action := Decide(sig, process.RoleMaster)
	switch action {
	case ActionStop:
		s.logger.Info("Stop requested", "signal", sig)
		s.stop(ctx)
		return true
	case ActionReload:
		s.logger.Info("Reload requested", "signal", sig)
		s.reload(ctx)
	case ActionIgnore:
		s.logger.Debug("Ignoring signal", "signal", sig)
	}
	return false
}

func (s *Supervisor) stop(ctx context.Context) {
	s.setStatus(process.StatusShuttingDown)
	if err := s.notifier.Stopping(); err != nil {
		s.logger.Debug("Stopping notification failed", "error", err)
	}
	s.cancelRetry()

	s.terminate(ctx, s.workers.PIDs())
	s.workers.Clear()

	if err := s.opts.PIDFile.Remove(); err != nil {
		s.logger.Error("Failed to remove PID file", "error", err)
	}
	s.publishState()
	s.logger.Info("Master stopped", "pid", s.masterPID)
}

func (s *Supervisor) reload(ctx context.Context) {
	if s.status != process.StatusRunning {
		s.logger.Debug("Reload ignored", "status", s.status)
		return
	}

	started := time.Now()
	s.setStatus(process.StatusReloading)
	if err := s.notifier.Reloading(); err != nil {
		s.logger.Debug("Reloading notification failed", "error", err)
	}

	old := s.workers.PIDs()
	s.terminate(ctx, old)

	err := process.WaitUntil(ctx, func() bool {
		s.collect()
		return !process.AnyAlive(old...)
	}, s.opts.ReloadTimeout, reapInterval)
	if err != nil {
		s.logger.Error("Old workers still alive after reload timeout", "error", err, "timeout", s.opts.ReloadTimeout)
	}
	s.workers.Clear()

	if s.opts.BeforeReload != nil {
		s.opts.BeforeReload()
	}

	s.cancelRetry()
	s.backoff = 0
	s.crashLoop = false
	s.earlyExit = false
	clear(s.started)
	s.maintain()

	s.generation++
	s.setStatus(process.StatusRunning)
	if err := s.notifier.Ready(); err != nil {
		s.logger.Debug("Readiness notification failed", "error", err)
	}

	workers := s.workers.PIDs()
	s.logger.Info("Reload complete", "generation", s.generation, "workers", workers, "duration", time.Since(started))
	s.opts.Bus.Publish(events.ReloadCompletedEvent{
		Generation: s.generation,
		Workers:    workers,
		Duration:   time.Since(started),
		Timestamp:  time.Now(),
	})
}

// terminate sends SIGTERM to pids, waits up to the grace period while reaping,
// then SIGKILLs whatever is left.
func (s *Supervisor) terminate(ctx context.Context, pids []int) {
	if len(pids) == 0 {
		return
	}

	for _, pid := range pids {
		s.terminating[pid] = true
		if err := process.Signal(pid, syscall.SIGTERM); err != nil {
			s.logger.Debug("Failed to signal worker", "pid", pid, "error", err)
		}
	}

	gone := func() bool {
		s.collect()
		return !process.AnyAlive(pids...)
	}

	if err := process.WaitUntil(ctx, gone, s.opts.GracePeriod, reapInterval); err == nil {
		return
	}

	for _, pid := range pids {
		if !process.IsAlive(pid) {
			continue
		}
		s.logger.Warn("Worker did not exit in time, killing", "pid", pid, "grace_period", s.opts.GracePeriod)
		if err := process.ForceKill(pid); err != nil {
			s.logger.Error("Failed to kill worker", "pid", pid, "error", err)
		}
	}

	if err := process.WaitUntil(ctx, gone, killWait, reapInterval); err != nil {
		s.logger.Error("Workers survived SIGKILL", "error", err)
	}
}

func (s *Supervisor) setStatus(status process.Status) {
	if s.status == status {
		return
	}
	old := s.status
	s.status = status
	s.logger.Debug("Status changed", "from", old, "to", status)
	s.publishState()
	s.opts.Bus.Publish(events.StatusChangedEvent{Old: old, New: status, Timestamp: time.Now()})
}

func (s *Supervisor) publishState() {
	s.state.Store(&State{
		Status:     s.status,
		MasterPID:  s.masterPID,
		Workers:    s.workers.PIDs(),
		Generation: s.generation,
	})
}
