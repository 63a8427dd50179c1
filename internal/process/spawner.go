package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ErrSpawn is returned when the OS refuses to create a worker process.
var ErrSpawn = errors.New("failed to create worker process")

// Spawner creates one worker process and returns its PID.
// The caller becomes the parent and is responsible for reaping it.
type Spawner interface {
	Spawn() (int, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func() (int, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn() (int, error) {
	return f()
}

// ExecSpawner starts workers by executing a binary, by default the running one.
// It never waits for the child: exits are collected by the master through Reap.
type ExecSpawner struct {
	// Path of the executable. Empty means os.Executable().
	Path string
	// Args passed to the executable (without argv[0]).
	Args []string
	// Env is appended to the current environment.
	Env []string
	// Stdout and Stderr default to the parent's streams.
	Stdout *os.File
	Stderr *os.File
}

// NewExecSpawner creates a spawner that re-executes the current binary.
func NewExecSpawner(args, env []string) *ExecSpawner {
	return &ExecSpawner{Args: args, Env: env}
}

// Spawn starts the worker and releases the handle without waiting.
func (s *ExecSpawner) Spawn() (int, error) {
	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("%w: cannot resolve executable: %w", ErrSpawn, err)
		}
		path = exe
	}

	cmd := exec.Command(path, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	pid := cmd.Process.Pid

	// Drop the handle (and its pidfd) so the child is only ever collected by
	// wait4 in the master's reaper. Release only fails on a handle that was
	// already released.
	_ = cmd.Process.Release()

	return pid, nil
}
