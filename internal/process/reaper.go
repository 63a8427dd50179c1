package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Exit describes a child state change collected by Reap.
type Exit struct {
	PID    int
	Status unix.WaitStatus
}

// Dead reports whether the child terminated (as opposed to being stopped or continued).
func (e Exit) Dead() bool {
	return e.Status.Exited() || e.Status.Signaled()
}

func (e Exit) String() string {
	switch {
	case e.Status.Exited():
		return fmt.Sprintf("exit status %d", e.Status.ExitStatus())
	case e.Status.Signaled():
		return fmt.Sprintf("killed by %v", e.Status.Signal())
	case e.Status.Stopped():
		return fmt.Sprintf("stopped by %v", e.Status.StopSignal())
	case e.Status.Continued():
		return "continued"
	default:
		return fmt.Sprintf("wait status %#x", uint32(e.Status))
	}
}

// Reap collects every pending child state change without blocking.
// Terminated children are removed from the process table as a side effect.
func Reap() []Exit {
	var exits []Exit
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || pid <= 0 {
			// ECHILD: no children left; pid 0: none changed state
			return exits
		}
		exits = append(exits, Exit{PID: pid, Status: ws})
	}
}
