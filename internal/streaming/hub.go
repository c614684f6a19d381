package streaming

import (
	"context"
	"slices"
	"time"
)

// StreamEvent is a real-time lifecycle event of a workflow instance.
type StreamEvent struct {
	InstanceID   string    `json:"instance_id"`
	DefinitionID string    `json:"definition_id,omitempty"`
	ActivityID   string    `json:"activity_id,omitempty"`
	EventType    string    `json:"event_type"`
	Status       string    `json:"status,omitempty"`
	Outcomes     []string  `json:"outcomes,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// EventFilter selects events for a subscriber. Zero fields match everything.
type EventFilter struct {
	InstanceID string   `json:"instance_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// Matches reports whether e passes the filter.
func (f EventFilter) Matches(e StreamEvent) bool {
	if f.InstanceID != "" && f.InstanceID != e.InstanceID {
		return false
	}
	return len(f.EventTypes) == 0 || slices.Contains(f.EventTypes, e.EventType)
}

// EventHub provides pub/sub for workflow events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
	Close() error
}
