package worker

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/smazurov/prefork/internal/process"
)

func runRuntime(ctx context.Context, r *Runtime) <-chan int {
	done := make(chan int, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func waitCode(t *testing.T, done <-chan int) int {
	t.Helper()
	select {
	case code := <-done:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit")
		return -1
	}
}

func TestRuntimeExitSignals(t *testing.T) {
	for _, sig := range []os.Signal{syscall.SIGINT, syscall.SIGTERM} {
		t.Run(sig.String(), func(t *testing.T) {
			signals := make(chan os.Signal, 4)
			var units atomic.Int32
			task := TaskFunc(func(ctx context.Context) error {
				units.Add(1)
				return SleepTask{Interval: 10 * time.Millisecond}.Run(ctx)
			})

			r := New(task, WithSignals(signals), WithLogger(testLogger()))
			done := runRuntime(context.Background(), r)

			time.Sleep(50 * time.Millisecond)
			signals <- sig

			if code := waitCode(t, done); code != 0 {
				t.Errorf("exit code = %d, want 0", code)
			}
			if units.Load() == 0 {
				t.Error("no unit of work ran")
			}
			if r.Status() != process.StatusShuttingDown {
				t.Errorf("status = %q, want shutting_down", r.Status())
			}
		})
	}
}

func TestRuntimeExitInterruptsLongUnit(t *testing.T) {
	signals := make(chan os.Signal, 4)
	r := New(SleepTask{Interval: time.Hour}, WithSignals(signals), WithLogger(testLogger()))
	done := runRuntime(context.Background(), r)

	time.Sleep(50 * time.Millisecond)
	signals <- syscall.SIGTERM

	if code := waitCode(t, done); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRuntimeIgnoresMasterOnlySignals(t *testing.T) {
	signals := make(chan os.Signal, 8)
	r := New(SleepTask{Interval: 5 * time.Millisecond}, WithSignals(signals), WithLogger(testLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runRuntime(ctx, r)

	for _, sig := range []os.Signal{syscall.SIGUSR1, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGUSR2} {
		signals <- sig
	}

	select {
	case code := <-done:
		t.Fatalf("worker exited with %d on a non-exit signal", code)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	if code := waitCode(t, done); code != 0 {
		t.Errorf("exit code after cancel = %d, want 0", code)
	}
}

func TestRuntimeUnitErrorsDoNotStopWorker(t *testing.T) {
	signals := make(chan os.Signal, 1)
	var calls atomic.Int32
	task := TaskFunc(func(context.Context) error {
		if calls.Add(1) == 3 {
			signals <- syscall.SIGTERM
		}
		return errors.New("unit failed")
	})

	r := New(task, WithSignals(signals), WithLogger(testLogger()))
	if code := waitCode(t, runRuntime(context.Background(), r)); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if calls.Load() < 3 {
		t.Errorf("calls = %d, want at least 3", calls.Load())
	}
}

func TestRuntimeExitsWhenOrphaned(t *testing.T) {
	// A master PID that is not our parent means the master is gone.
	r := New(SleepTask{Interval: time.Millisecond},
		WithSignals(make(chan os.Signal, 1)),
		WithLogger(testLogger()),
		WithMasterPID(os.Getppid()+1000000))

	if code := waitCode(t, runRuntime(context.Background(), r)); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRuntimeKeepsRunningUnderParent(t *testing.T) {
	r := New(SleepTask{Interval: time.Millisecond},
		WithSignals(make(chan os.Signal, 1)),
		WithLogger(testLogger()),
		WithMasterPID(os.Getppid()))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if code := waitCode(t, runRuntime(ctx, r)); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestMasterPIDFromEnv(t *testing.T) {
	tests := map[string]int{
		"":     0,
		"abc":  0,
		"-3":   0,
		"4321": 4321,
		" 12 ": 0,
	}
	for value, want := range tests {
		t.Setenv(EnvMasterPID, value)
		if got := MasterPIDFromEnv(); got != want {
			t.Errorf("MasterPIDFromEnv() with %q = %d, want %d", value, got, want)
		}
	}

	if got := MasterEnv(77); got != "PREFORK_MASTER_PID=77" {
		t.Errorf("MasterEnv(77) = %q", got)
	}
}
