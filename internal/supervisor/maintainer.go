package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/prefork/internal/events"
	"github.com/smazurov/prefork/internal/process"
)

// keepWorkerCount purges dead workers and spawns new ones, one at a time,
// until the pool is back at its target size. The first spawn failure ends
// the pass and is returned wrapped in process.ErrSpawn.
func (s *Supervisor) keepWorkerCount() error {
	s.collect()
	defer s.publishState()

	for s.workers.Len() < s.opts.Workers {
		pid, err := s.opts.Spawner.Spawn()
		if err != nil {
			if !errors.Is(err, process.ErrSpawn) {
				err = fmt.Errorf("%w: %w", process.ErrSpawn, err)
			}
			return err
		}

		s.workers.Add(pid)
		s.started[pid] = time.Now()
		s.logger.Info("Worker started", "pid", pid, "workers", s.workers.Len())
		s.opts.Bus.Publish(events.WorkerStartedEvent{PID: pid, Workers: s.workers.Len(), Timestamp: time.Now()})
	}
	return nil
}

// collect reaps exited children, then drops every registered worker that the
// prober reports dead. Reaping first matters: a zombie still answers kill(0).
func (s *Supervisor) collect() {
	for _, exit := range process.Reap() {
		if !exit.Dead() {
			s.logger.Debug("Worker state changed", "pid", exit.PID, "status", exit.String())
			continue
		}
		s.forget(exit.PID, exit.String())
	}

	for _, pid := range s.workers.PIDs() {
		if !process.IsAlive(pid) {
			s.forget(pid, "not alive")
		}
	}
}

func (s *Supervisor) forget(pid int, reason string) {
	expected := s.terminating[pid]
	delete(s.terminating, pid)
	started, known := s.started[pid]
	delete(s.started, pid)

	if !s.workers.Remove(pid) {
		return
	}

	switch {
	case expected:
		s.logger.Debug("Worker exited", "pid", pid, "reason", reason)
	case known && time.Since(started) < s.opts.SpawnBackoff:
		s.logger.Warn("Worker exited right after start", "pid", pid, "reason", reason, "uptime", time.Since(started))
		s.earlyExit = true
	default:
		s.logger.Warn("Worker exited unexpectedly", "pid", pid, "reason", reason)
		// The pool had been healthy; replace it without delay.
		s.crashLoop = false
		s.backoff = 0
	}
	s.opts.Bus.Publish(events.WorkerExitedEvent{PID: pid, Reason: reason, Expected: expected, Timestamp: time.Now()})
}

// maintain runs the maintainer in steady state. Failures are retried after
// an exponential backoff instead of being returned. A worker that dies
// within one spawn backoff of starting counts as a failed spawn, so a
// worker that cannot start never turns into a respawn loop. While a retry
// is pending child exits only purge the set.
func (s *Supervisor) maintain() {
	if s.retryC != nil {
		s.collect()
		s.earlyExit = false
		s.publishState()
		return
	}

	s.collect()
	if s.earlyExit {
		s.earlyExit = false
		s.crashLoop = true
		s.scheduleRetry(fmt.Errorf("%w: worker exited within %s of starting", ErrWorkerCrashed, s.opts.SpawnBackoff))
		s.publishState()
		return
	}

	if err := s.keepWorkerCount(); err != nil {
		s.scheduleRetry(err)
		return
	}
	if !s.crashLoop {
		s.backoff = 0
	}
}

func (s *Supervisor) scheduleRetry(err error) {
	delay := s.nextBackoff()
	s.logger.Error("Failed to keep worker pool, will retry", "error", err, "retry_in", delay,
		"workers", s.workers.Len(), "target", s.opts.Workers)
	s.opts.Bus.Publish(events.SpawnFailedEvent{Error: err.Error(), RetryIn: delay, Timestamp: time.Now()})
	s.retry = time.NewTimer(delay)
	s.retryC = s.retry.C
}

func (s *Supervisor) nextBackoff() time.Duration {
	if s.backoff == 0 {
		s.backoff = s.opts.SpawnBackoff
	} else {
		s.backoff = min(s.backoff*2, s.opts.SpawnBackoffMax)
	}
	return s.backoff
}

func (s *Supervisor) cancelRetry() {
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = nil
	s.retryC = nil
}
