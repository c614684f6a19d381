package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// EventLog provides typed append and replay on top of any EventStore.
type EventLog struct {
	events EventStore
}

// NewEventLog wraps an EventStore.
func NewEventLog(events EventStore) *EventLog {
	return &EventLog{events: events}
}

// Record marshals payload and appends one event.
func (el *EventLog) Record(ctx context.Context, instanceID, activityID, eventType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeSerialization, "marshal %s payload", eventType).WithCause(err)
		}
		raw = data
	}
	return el.events.AppendEvent(ctx, &Event{
		InstanceID: instanceID,
		ActivityID: activityID,
		Type:       eventType,
		Payload:    raw,
		Timestamp:  time.Now().UTC(),
	})
}

// ActivityHistory is the replayed view of one activity within an instance.
type ActivityHistory struct {
	ActivityID string     `json:"activityId"`
	Executions int        `json:"executions"`
	Outcomes   []string   `json:"outcomes,omitempty"` // outcomes of the latest execution
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	Faulted    bool       `json:"faulted,omitempty"`
}

// ExecutedPayload is the payload of activity_executed events.
type ExecutedPayload struct {
	Outcomes []string `json:"outcomes"`
}

// FaultedPayload is the payload of workflow_faulted events.
type FaultedPayload struct {
	Error string `json:"error"`
}

// Replay folds the events of an instance into per-activity history.
// Returns a STORE_ERROR if sequence gaps are detected.
func (el *EventLog) Replay(ctx context.Context, instanceID string) (map[string]*ActivityHistory, error) {
	events, err := el.events.GetEvents(ctx, instanceID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in instance %s: expected %d, got %d", instanceID, expected, e.Sequence)
		}
	}

	history := make(map[string]*ActivityHistory)
	for _, e := range events {
		if e.ActivityID == "" {
			continue
		}
		h, ok := history[e.ActivityID]
		if !ok {
			h = &ActivityHistory{ActivityID: e.ActivityID}
			history[e.ActivityID] = h
		}

		switch e.Type {
		case schema.EventActivityExecuting:
			h.Executions++
			ts := e.Timestamp
			h.LastRunAt = &ts
			h.Outcomes = nil
		case schema.EventActivityExecuted:
			var p ExecutedPayload
			if len(e.Payload) > 0 {
				if err := json.Unmarshal(e.Payload, &p); err != nil {
					return nil, schema.NewErrorf(schema.ErrCodeSerialization,
						"event %d payload", e.Sequence).WithCause(err)
				}
			}
			h.Outcomes = p.Outcomes
		case schema.EventWorkflowFaulted:
			h.Faulted = true
		}
	}
	return history, nil
}
