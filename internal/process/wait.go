package process

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by WaitUntil when the deadline passes first.
var ErrTimeout = errors.New("timed out waiting for condition")

// maxPollInterval caps the backoff between condition checks.
const maxPollInterval = 500 * time.Millisecond

// WaitUntil polls cond until it returns true, the timeout elapses, or ctx is done.
// The first check happens immediately. The pause between checks starts at
// interval and doubles up to maxPollInterval, never sleeping past the deadline.
func WaitUntil(ctx context.Context, cond func() bool, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		if cond() {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(interval, remaining)):
		}

		interval = min(interval*2, maxPollInterval)
	}
}
