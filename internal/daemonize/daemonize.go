// Package daemonize detaches the master from the invoking terminal and takes
// care of the cosmetics of a long running process: standard streams and the
// process name.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// EnvDaemonized marks a process that was started by Detach.
const EnvDaemonized = "PREFORK_DAEMONIZED"

// IsDaemonized reports whether this process was started by Detach.
func IsDaemonized() bool {
	return os.Getenv(EnvDaemonized) == "1"
}

// Detach re-executes the current binary with args in a new session, with
// stdin from /dev/null and stdout/stderr appended to sink. The returned
// process is not waited for; the caller may Wait on it to learn about an
// early exit, or simply exit and leave it running.
func Detach(args []string, sink string) (*os.Process, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve executable: %w", err)
	}

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer stdin.Close()

	out, err := openSink(sink)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), EnvDaemonized+"=1")
	cmd.Stdin = stdin
	cmd.Stdout = out
	cmd.Stderr = out
	// A new session leader has no controlling terminal and its own process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start background process: %w", err)
	}
	return cmd.Process, nil
}

// RedirectStdio points file descriptors 1 and 2 at path, opened for append.
func RedirectStdio(path string) error {
	f, err := openSink(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fd := int(f.Fd())
	for _, target := range []int{1, 2} {
		if err := unix.Dup2(fd, target); err != nil {
			return fmt.Errorf("failed to redirect fd %d to %s: %w", target, path, err)
		}
	}
	return nil
}

func openSink(path string) (*os.File, error) {
	if path == "" {
		path = os.DevNull
	}
	if path != os.DevNull {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}
