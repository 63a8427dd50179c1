package worker

import (
	"context"
	"time"
)

// SleepTask is an idle heartbeat: each unit waits for Interval.
type SleepTask struct {
	Interval time.Duration
}

// Run waits for the interval or until ctx is done.
func (t SleepTask) Run(ctx context.Context) error {
	timer := time.NewTimer(t.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
