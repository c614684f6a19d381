package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Event is an immutable entry in an instance's event log.
type Event struct {
	ID         int64           `json:"id"`
	InstanceID string          `json:"instanceId"`
	ActivityID string          `json:"activityId,omitempty"`
	Type       string          `json:"eventType"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// InstanceFilter specifies criteria for listing instances. Zero fields match all.
type InstanceFilter struct {
	DefinitionID string                `json:"definitionId,omitempty"`
	Status       schema.WorkflowStatus `json:"status,omitempty"`
	SignalKey    string                `json:"signalKey,omitempty"` // has a bookmark with this key
	DueBefore    *time.Time            `json:"dueBefore,omitempty"` // has a bookmark due at or before
	Limit        int                   `json:"limit,omitempty"`
}

func (f InstanceFilter) matches(inst *schema.WorkflowInstance) bool {
	if f.DefinitionID != "" && inst.DefinitionID != f.DefinitionID {
		return false
	}
	if f.Status != "" && inst.Status != f.Status {
		return false
	}
	if f.SignalKey == "" && f.DueBefore == nil {
		return true
	}
	for _, b := range inst.Bookmarks {
		if f.SignalKey != "" && b.SignalKey != f.SignalKey {
			continue
		}
		if f.DueBefore != nil && (b.DueAt == nil || b.DueAt.After(*f.DueBefore)) {
			continue
		}
		return true
	}
	return false
}
