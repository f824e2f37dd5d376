// Package events carries domain events between modules in-process. The
// pipeline and reconciler publish here; the cache re-snapshot and the
// board's layout hints hang off subscriptions.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event. The name keys handler
// registration, so it must be stable across builds.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by all events; embed it.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one registered type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to handlers subscribed by event name. Publishing
// never blocks on handlers and never fails; handler errors are the
// bus's problem to log.
type Bus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventName string, handler Handler)
}
