// Package pidfile stores the master's process identifier on disk.
//
// The file is the only durable state of a prefork installation: it exists
// while a master is believed to be running and names that master so that
// later invocations can signal it.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrPersistence is returned when the PID file cannot be read or written.
	ErrPersistence = errors.New("PID file not accessible")

	// ErrInvalidPID is returned when the PID file contains invalid data.
	ErrInvalidPID = errors.New("invalid PID in file")
)

// Store reads and writes a single decimal PID at a fixed path.
// It does no locking: one master per path is enforced by the relay's
// check-then-act sequence, not here.
type Store struct {
	path string
}

// New creates a store for the given path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the recorded PID. ok is false when no file exists.
func (s *Store) Read() (pid int, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err = strconv.Atoi(pidStr)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidPID, pidStr)
	}
	if pid <= 0 {
		return 0, false, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}

	return pid, true, nil
}

// Write replaces the file contents with pid.
// The new contents are written to a temporary file and renamed into place,
// so a concurrent reader sees either the old or the new record.
func (s *Store) Write(pid int) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write PID: %w", ErrPersistence, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return nil
}

// Remove deletes the file. Removing a missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove PID file: %w", ErrPersistence, err)
	}
	return nil
}

// Exists returns true if the file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
