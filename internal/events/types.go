package events

import (
	"time"

	"github.com/smazurov/prefork/internal/process"
)

// Event type constants for kelindar/event.
const (
	TypeWorkerStarted uint32 = iota + 1
	TypeWorkerExited
	TypeSpawnFailed
	TypeStatusChanged
	TypeReloadCompleted
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WorkerStartedEvent is published after a worker process was created and registered.
type WorkerStartedEvent struct {
	PID       int       `json:"pid"`
	Workers   int       `json:"workers"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for WorkerStartedEvent.
func (e WorkerStartedEvent) Type() uint32 { return TypeWorkerStarted }

// WorkerExitedEvent is published when a worker is removed from the worker set.
// Expected is true when the master itself terminated the worker (stop or reload).
type WorkerExitedEvent struct {
	PID       int       `json:"pid"`
	Reason    string    `json:"reason"`
	Expected  bool      `json:"expected"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns the event type identifier for WorkerExitedEvent.
func (e WorkerExitedEvent) Type() uint32 { return TypeWorkerExited }

// SpawnFailedEvent is published when the OS refused to create a worker.
type SpawnFailedEvent struct {
	Error     string        `json:"error"`
	RetryIn   time.Duration `json:"retry_in"`
	Timestamp time.Time     `json:"timestamp"`
}

// Type returns the event type identifier for SpawnFailedEvent.
func (e SpawnFailedEvent) Type() uint32 { return TypeSpawnFailed }

// StatusChangedEvent is published on every master status transition.
type StatusChangedEvent struct {
	Old       process.Status `json:"old"`
	New       process.Status `json:"new"`
	Timestamp time.Time      `json:"timestamp"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// ReloadCompletedEvent is published when a reload has replaced the worker set.
type ReloadCompletedEvent struct {
	Generation int           `json:"generation"`
	Workers    []int         `json:"workers"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Type returns the event type identifier for ReloadCompletedEvent.
func (e ReloadCompletedEvent) Type() uint32 { return TypeReloadCompleted }
