package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer is a bytes.Buffer safe for the output streaming goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestTask creates a CommandTask with short timeouts for testing.
func newTestTask(t *testing.T, command string, opts ...CommandOption) *CommandTask {
	t.Helper()
	task, err := NewCommandTask(command, testLogger(), opts...)
	if err != nil {
		t.Fatalf("NewCommandTask(%q): %v", command, err)
	}
	task.gracefulTimeout = 100 * time.Millisecond
	task.killTimeout = 100 * time.Millisecond
	return task
}

func runAsync(ctx context.Context, task Task) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- task.Run(ctx)
	}()
	return done
}

func waitForErr(t *testing.T, done <-chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatal("timeout waiting for task to finish")
		return nil
	}
}

func TestCommandTaskSuccess(t *testing.T) {
	task := newTestTask(t, "true")
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
}

func TestCommandTaskExitCode(t *testing.T) {
	task := newTestTask(t, "sh -c 'exit 42'")
	err := task.Run(context.Background())
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("Run() = %v, want ErrCommandFailed", err)
	}
	if !strings.Contains(err.Error(), "42") {
		t.Errorf("error %q should mention the exit code", err)
	}
}

func TestCommandTaskNonExistent(t *testing.T) {
	task := newTestTask(t, "/nonexistent/command/that/does/not/exist")
	if err := task.Run(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
}

func TestNewCommandTaskInvalid(t *testing.T) {
	for _, command := range []string{"", "   ", `echo "unclosed`} {
		if _, err := NewCommandTask(command, testLogger()); err == nil {
			t.Errorf("NewCommandTask(%q) should fail", command)
		}
	}
}

func TestCommandTaskGracefulCancel(t *testing.T) {
	task := newTestTask(t, `sh -c "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"`)
	task.gracefulTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, task)
	time.Sleep(100 * time.Millisecond)
	cancel()

	if err := waitForErr(t, done, 2*time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestCommandTaskForceKillOnTimeout(t *testing.T) {
	task := newTestTask(t, `sh -c "trap '' INT; sleep 10"`)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, task)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	cancel()
	waitForErr(t, done, 2*time.Second)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("force kill took %v", elapsed)
	}
}

func TestCommandTaskStreamsOutput(t *testing.T) {
	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cmd := `sh -c 'echo "ERROR: disk full"; echo "[warn] slow"; echo plain line; echo oops >&2'`
	task := newTestTask(t, cmd, WithOutputLogger(logger))

	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		`level=ERROR msg="disk full" source=stdout`,
		`level=WARN msg=slow source=stdout`,
		`level=INFO msg="plain line" source=stdout`,
		`level=INFO msg=oops source=stderr`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
}

func TestPrefixLevelParser(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel string
		wantMsg   string
	}{
		{"ERROR: boom", "error", "boom"},
		{"[debug] details", "debug", "details"},
		{"WARNING: careful", "warning", "careful"},
		{"level=info started", "info", "started"},
		{"level=trace x", "debug", "x"},
		{"level=bogus x", "info", "level=bogus x"},
		{"error without marker", "info", "error without marker"},
		{"plain", "info", "plain"},
		{"[FATAL]", "fatal", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := PrefixLevelParser(tt.line)
			if level != tt.wantLevel || msg != tt.wantMsg {
				t.Errorf("PrefixLevelParser(%q) = (%q, %q), want (%q, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
			}
		})
	}
}

func TestSleepTask(t *testing.T) {
	start := time.Now()
	if err := (SleepTask{Interval: 50 * time.Millisecond}).Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("SleepTask returned early")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (SleepTask{Interval: time.Hour}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() with cancelled ctx = %v", err)
	}
}
