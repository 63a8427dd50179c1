// Package events carries supervisor lifecycle notifications to observers.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil bus drops the event.
// Usage: bus.Publish(WorkerStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case WorkerStartedEvent:
		event.Publish(b.dispatcher, e)
	case WorkerExitedEvent:
		event.Publish(b.dispatcher, e)
	case SpawnFailedEvent:
		event.Publish(b.dispatcher, e)
	case StatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case ReloadCompletedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e WorkerExitedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WorkerStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WorkerExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SpawnFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReloadCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler types get a no-op unsubscribe
		return func() {}
	}
}

// SubscribeToChannel bridges callback subscriptions to a channel.
// Events are dropped when the channel is full so a slow reader never blocks the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- T) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
