// Package events is the in-process event bus shared by the API, the camera
// registry and the session hub.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish delivers ev to the subscribers of its concrete type.
// Unknown types are dropped.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case CameraCreatedEvent:
		event.Publish(b.dispatcher, e)
	case CameraUpdatedEvent:
		event.Publish(b.dispatcher, e)
	case CameraDeletedEvent:
		event.Publish(b.dispatcher, e)
	case CamerasChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProbeCompletedEvent:
		event.Publish(b.dispatcher, e)
	case SessionStatusEvent:
		event.Publish(b.dispatcher, e)
	case SeekCompletedEvent:
		event.Publish(b.dispatcher, e)
	case TimeSyncCheckedEvent:
		event.Publish(b.dispatcher, e)
	case SnapshotCapturedEvent:
		event.Publish(b.dispatcher, e)
	case SnapshotFailedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type in its signature and
// returns an unsubscribe function. Handlers of unknown types get a no-op.
// Usage: unsub := bus.Subscribe(func(e SeekCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(CameraCreatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraUpdatedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CameraDeletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CamerasChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProbeCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionStatusEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SeekCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TimeSyncCheckedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SnapshotCapturedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SnapshotFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Now formats the current time the way event timestamps are written.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
