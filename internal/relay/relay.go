package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/pidfile"
	"github.com/smazurov/prefork/internal/process"
	"golang.org/x/sys/unix"
)

// Prober reports whether pid is alive.
type Prober func(pid int) bool

// Killer delivers sig to pid.
type Killer func(pid int, sig syscall.Signal) error

// Relay carries start, stop and reload requests from a command invocation to
// the running master, using the PID file to find it.
type Relay struct {
	store        *pidfile.Store
	alive        Prober
	kill         Killer
	stopTimeout  time.Duration
	pollInterval time.Duration
	logger       logging.Logger
	out          io.Writer
}

// Option configures a Relay.
type Option func(*Relay)

// WithProber replaces the liveness probe.
func WithProber(p Prober) Option {
	return func(r *Relay) {
		r.alive = p
	}
}

// WithKiller replaces signal delivery.
func WithKiller(k Killer) Option {
	return func(r *Relay) {
		r.kill = k
	}
}

// WithStopTimeout sets how long Stop waits and how often it polls.
func WithStopTimeout(timeout, poll time.Duration) Option {
	return func(r *Relay) {
		r.stopTimeout = timeout
		r.pollInterval = poll
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithOutput sets where operator progress messages are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Relay) {
		r.out = w
	}
}

// New creates a relay for the master recorded in store.
func New(store *pidfile.Store, opts ...Option) *Relay {
	r := &Relay{
		store:        store,
		alive:        process.IsAlive,
		kill:         process.Signal,
		stopTimeout:  5 * time.Second,
		pollInterval: 50 * time.Millisecond,
		logger:       logging.GetLogger("relay"),
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MasterStatus describes what the PID file says about the master.
type MasterStatus struct {
	PID     int   // recorded PID, 0 when absent or unreadable
	Alive   bool  // recorded PID answers the liveness probe
	Stale   bool  // a PID is recorded but the process is gone
	Invalid error // the file exists but could not be used
}

// Status reads the PID file and probes the recorded master.
func (r *Relay) Status() MasterStatus {
	pid, ok, err := r.store.Read()
	if err != nil {
		return MasterStatus{Invalid: err}
	}
	if !ok {
		return MasterStatus{}
	}
	alive := r.alive(pid)
	return MasterStatus{PID: pid, Alive: alive, Stale: !alive}
}

// Start checks that no master is running for this PID file. It does not
// start anything itself: on nil the caller becomes (or launches) the master.
func (r *Relay) Start() error {
	st := r.Status()
	switch {
	case st.Invalid != nil:
		return newError(CodePersistence, "cannot use PID file "+r.store.Path(), 0, st.Invalid)
	case st.Alive:
		return newError(CodeAlreadyRunning, ErrAlreadyRunning.Message, st.PID, nil)
	case st.Stale:
		r.logger.Info("Ignoring stale PID file", "pid", st.PID, "path", r.store.Path())
	}
	return nil
}

// Stop asks the master to stop and waits until it is gone. The master is
// never force-killed: a master still alive after the timeout is an error.
func (r *Relay) Stop(ctx context.Context) error {
	pid, err := r.liveMaster()
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Stopping prefork master (pid %d) ...\n", pid)
	if err := r.send(pid, syscall.SIGINT); err != nil {
		return err
	}

	err = process.WaitUntil(ctx, func() bool { return !r.alive(pid) }, r.stopTimeout, r.pollInterval)
	if errors.Is(err, process.ErrTimeout) {
		return newError(CodeStopTimeout, ErrStopTimeout.Message, pid, nil)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(r.out, "prefork stopped")
	return nil
}

// Reload asks the master to replace its workers and returns immediately.
func (r *Relay) Reload() error {
	pid, err := r.liveMaster()
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Reloading prefork master (pid %d) ...\n", pid)
	return r.send(pid, syscall.SIGUSR1)
}

// liveMaster returns the recorded master PID if that master is alive.
// An unusable PID file means no master can be addressed.
func (r *Relay) liveMaster() (int, error) {
	st := r.Status()
	if st.Invalid != nil {
		r.logger.Warn("PID file unusable", "path", r.store.Path(), "error", st.Invalid)
		return 0, newError(CodeNotRunning, ErrNotRunning.Message, 0, st.Invalid)
	}
	if !st.Alive {
		return 0, newError(CodeNotRunning, ErrNotRunning.Message, st.PID, nil)
	}
	return st.PID, nil
}

func (r *Relay) send(pid int, sig syscall.Signal) error {
	r.logger.Debug("Signalling master", "pid", pid, "signal", sig)
	if err := r.kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return newError(CodeNotRunning, ErrNotRunning.Message, pid, nil)
		}
		return newError(CodeSignalFailed, "cannot signal master", pid, err)
	}
	return nil
}
