package supervisor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/prefork/internal/process"
)

// Action is what a process does in response to a control signal.
type Action int

// Control actions.
const (
	ActionNone   Action = iota // Not a control signal for this role
	ActionStop                 // Master: terminate workers, remove PID file, exit
	ActionReload               // Master: replace every worker
	ActionExit                 // Worker: exit cleanly
	ActionIgnore               // Explicitly ignored
)

func (a Action) String() string {
	switch a {
	case ActionStop:
		return "stop"
	case ActionReload:
		return "reload"
	case ActionExit:
		return "exit"
	case ActionIgnore:
		return "ignore"
	default:
		return "none"
	}
}

// HandledSignals are delivered to the control channel of both roles.
var HandledSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGQUIT}

// IgnoredSignals are set to SIG_IGN in both roles.
var IgnoredSignals = []os.Signal{syscall.SIGUSR2, syscall.SIGHUP, syscall.SIGPIPE}

// Decide maps a signal to the action the given role takes.
//
//	signal            master        worker
//	SIGINT, SIGTERM   stop          exit
//	SIGUSR1, SIGQUIT  reload        none
//	SIGUSR2, SIGHUP,  ignore        ignore
//	SIGPIPE
func Decide(sig os.Signal, role process.Role) Action {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM:
		if role == process.RoleMaster {
			return ActionStop
		}
		return ActionExit
	case syscall.SIGUSR1, syscall.SIGQUIT:
		if role == process.RoleMaster {
			return ActionReload
		}
		return ActionNone
	case syscall.SIGUSR2, syscall.SIGHUP, syscall.SIGPIPE:
		return ActionIgnore
	default:
		return ActionNone
	}
}

// Install routes the handled signals to ch and ignores the ignored set.
// The returned function stops delivery to ch.
func Install(ch chan<- os.Signal) func() {
	signal.Ignore(IgnoredSignals...)
	signal.Notify(ch, HandledSignals...)
	return func() { signal.Stop(ch) }
}
