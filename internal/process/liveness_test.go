package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

// startSleeper starts a child that lives until killed and is reaped by the test.
func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestIsAliveSelf(t *testing.T) {
	if !IsAlive(os.Getpid()) {
		t.Error("expected own process to be alive")
	}
}

func TestIsAliveInvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if IsAlive(pid) {
			t.Errorf("IsAlive(%d) = true, want false", pid)
		}
	}
}

func TestIsAliveAfterExit(t *testing.T) {
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}

	if IsAlive(cmd.Process.Pid) {
		t.Errorf("IsAlive(%d) = true for reaped process", cmd.Process.Pid)
	}
}

func TestAnyAlive(t *testing.T) {
	dead := exec.Command("true")
	if err := dead.Run(); err != nil {
		t.Fatal(err)
	}
	live := startSleeper(t)

	if AnyAlive() {
		t.Error("AnyAlive() with no pids = true")
	}
	if AnyAlive(dead.Process.Pid) {
		t.Error("AnyAlive(dead) = true")
	}
	if !AnyAlive(dead.Process.Pid, live.Process.Pid) {
		t.Error("AnyAlive(dead, live) = false")
	}
}

func TestSignalAndForceKill(t *testing.T) {
	cmd := startSleeper(t)
	pid := cmd.Process.Pid

	if err := Signal(pid, syscall.Signal(0)); err != nil {
		t.Fatalf("Signal(0) error = %v", err)
	}

	if err := ForceKill(pid); err != nil {
		t.Fatalf("ForceKill() error = %v", err)
	}

	state, err := cmd.Process.Wait()
	if err != nil {
		t.Fatal(err)
	}
	ws := state.Sys().(syscall.WaitStatus)
	if !ws.Signaled() || ws.Signal() != syscall.SIGKILL {
		t.Errorf("expected SIGKILL, got %v", state)
	}

	// Already gone: not an error
	if err := ForceKill(pid); err != nil {
		t.Errorf("ForceKill() on dead process error = %v", err)
	}
}

func TestSignalRejectsInvalidPID(t *testing.T) {
	if err := Signal(0, syscall.SIGTERM); err == nil {
		t.Error("expected error when signalling pid 0")
	}
}

func TestExecSpawnerStartsDetachedHandle(t *testing.T) {
	s := &ExecSpawner{Path: "/bin/sh", Args: []string{"-c", "sleep 30"}}

	pid, err := s.Spawn()
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if !IsAlive(pid) {
		t.Fatalf("spawned worker %d not alive", pid)
	}

	if err := Signal(pid, syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}

	var exits []Exit
	err = WaitUntil(context.Background(), func() bool {
		exits = append(exits, Reap()...)
		return !IsAlive(pid)
	}, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("worker %d did not exit: %v", pid, err)
	}

	found := false
	for _, e := range exits {
		if e.PID == pid && e.Dead() {
			found = true
		}
	}
	if !found {
		t.Errorf("Reap() did not report pid %d, got %v", pid, exits)
	}
}

func TestExecSpawnerFailure(t *testing.T) {
	s := &ExecSpawner{Path: "/nonexistent/prefork-worker"}

	_, err := s.Spawn()
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !errors.Is(err, ErrSpawn) {
		t.Errorf("Spawn() error = %v, want ErrSpawn", err)
	}
}
