package process

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsAlive reports whether pid refers to an existing process.
// It sends signal 0, which checks existence without disturbing the target.
// A permission error means the process exists, so it counts as alive.
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// AnyAlive reports whether at least one of pids is alive.
func AnyAlive(pids ...int) bool {
	for _, pid := range pids {
		if IsAlive(pid) {
			return true
		}
	}
	return false
}

// Signal sends sig to pid.
func Signal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("failed to send %v to process %d: %w", sig, pid, err)
	}
	return nil
}

// ForceKill sends SIGKILL to pid if it is still alive.
// A process that disappears between the probe and the kill is not an error.
func ForceKill(pid int) error {
	if !IsAlive(pid) {
		return nil
	}
	if err := Signal(pid, syscall.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
