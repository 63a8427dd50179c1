package worker

import "syscall"

// The command gets its own process group so a terminal ^C reaches it only
// through the worker, and is killed if the worker dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
