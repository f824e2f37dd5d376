// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"offerboard_backend/platform/events"
	"offerboard_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// RowTopologyChanged is published when an offer crosses the boundary
// between having zero and one-or-more live assignments, so the display
// layer knows the row's layout height must be recomputed.
type RowTopologyChanged struct {
	BaseEvent
	Article        string `json:"article"`
	HasAssignments bool   `json:"hasAssignments"`
}

func (e RowTopologyChanged) EventName() string { return "board.row.topology_changed" }

// MetricsRefreshed is published when a pipeline run completes.
type MetricsRefreshed struct {
	BaseEvent
	Generation uint64 `json:"generation"`
	Mode       string `json:"mode"`
	Article    string `json:"article,omitempty"`
}

func (e MetricsRefreshed) EventName() string { return "metrics.refreshed" }
