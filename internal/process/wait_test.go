package process

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitUntilImmediate(t *testing.T) {
	calls := 0
	err := WaitUntil(context.Background(), func() bool {
		calls++
		return true
	}, time.Second, 10*time.Millisecond)

	if err != nil {
		t.Fatalf("WaitUntil() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("cond called %d times, want 1", calls)
	}
}

func TestWaitUntilEventually(t *testing.T) {
	var calls atomic.Int32
	err := WaitUntil(context.Background(), func() bool {
		return calls.Add(1) >= 3
	}, time.Second, time.Millisecond)

	if err != nil {
		t.Fatalf("WaitUntil() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("cond called %d times, want 3", got)
	}
}

func TestWaitUntilTimeout(t *testing.T) {
	start := time.Now()
	err := WaitUntil(context.Background(), func() bool { return false }, 50*time.Millisecond, 10*time.Millisecond)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitUntil() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("WaitUntil() took %v, expected to stop near the 50ms deadline", elapsed)
	}
}

func TestWaitUntilContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WaitUntil(ctx, func() bool { return false }, 5*time.Second, 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitUntil() error = %v, want context.Canceled", err)
	}
}

func TestWaitUntilDefaultInterval(t *testing.T) {
	var calls atomic.Int32
	err := WaitUntil(context.Background(), func() bool {
		return calls.Add(1) >= 2
	}, time.Second, 0)

	if err != nil {
		t.Errorf("WaitUntil() with zero interval error = %v", err)
	}
}
