package schema

import (
	"encoding/json"
	"time"
)

// WorkflowType is a published workflow definition: a graph of activities
// connected by outcome-labelled transitions. It is read-only at execution time.
type WorkflowType struct {
	ID          string           `json:"id"`
	Name        string           `json:"name,omitempty"`
	Activities  []ActivityRecord `json:"activities"`
	Transitions []Transition     `json:"transitions,omitempty"`
	InputSchema json.RawMessage  `json:"inputSchema,omitempty"` // optional JSON Schema for start input

	// DeleteFinished removes instances from the store once they finish.
	DeleteFinished bool `json:"deleteFinished,omitempty"`
}

// ActivityRecord configures one node of the graph.
type ActivityRecord struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	IsStart    bool                `json:"isStart,omitempty"`
	StartWhen  *Property           `json:"startWhen,omitempty"` // start predicate; absent means always
	Properties map[string]Property `json:"properties,omitempty"`
}

// Property is a named expression or literal in an activity's property bag.
// An empty Syntax marks Value as a literal.
type Property struct {
	Syntax     string `json:"syntax,omitempty"`
	Expression string `json:"expression,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// IsLiteral reports whether the property carries a literal value.
func (p Property) IsLiteral() bool {
	return p.Syntax == ""
}

// Literal returns a literal property.
func Literal(v any) Property {
	return Property{Value: v}
}

// Expr returns a property evaluated by the evaluator registered for syntax.
func Expr(syntax, expression string) Property {
	return Property{Syntax: syntax, Expression: expression}
}

// Transition is a directed edge keyed by (source activity, outcome).
type Transition struct {
	SourceActivityID      string `json:"sourceActivityId"`
	SourceOutcome         string `json:"sourceOutcome"`
	DestinationActivityID string `json:"destinationActivityId"`
}

// Activity returns the record with the given id.
func (w *WorkflowType) Activity(id string) (*ActivityRecord, bool) {
	for i := range w.Activities {
		if w.Activities[i].ID == id {
			return &w.Activities[i], true
		}
	}
	return nil, false
}

// StartActivities returns the records flagged as start activities, in declaration order.
func (w *WorkflowType) StartActivities() []*ActivityRecord {
	var out []*ActivityRecord
	for i := range w.Activities {
		if w.Activities[i].IsStart {
			out = append(out, &w.Activities[i])
		}
	}
	return out
}

// WorkflowInstance is the persisted state of one execution context.
type WorkflowInstance struct {
	DefinitionID        string              `json:"definitionId"`
	CorrelationID       string              `json:"correlationId"`
	Status              WorkflowStatus      `json:"status"`
	Variables           map[string]any      `json:"variables"`
	BlockingActivityIDs []string            `json:"blockingActivityIds"`
	Bookmarks           map[string]Bookmark `json:"bookmarks,omitempty"`
	ExecutionLog        []ExecutionLogEntry `json:"executionLog"`
	FaultedActivityID   string              `json:"faultedActivityId,omitempty"`
	FaultMessage        string              `json:"faultMessage,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// Bookmark records what a blocking activity is waiting for.
type Bookmark struct {
	SignalKey string     `json:"signalKey"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
}

// ExecutionLogEntry is one activity/outcome pair actually taken.
type ExecutionLogEntry struct {
	ActivityID string    `json:"activityId"`
	Outcome    string    `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// IsBlockedOn reports whether activityID is in the blocking set.
func (i *WorkflowInstance) IsBlockedOn(activityID string) bool {
	for _, id := range i.BlockingActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

// Unblock removes activityID from the blocking set and its bookmark.
func (i *WorkflowInstance) Unblock(activityID string) {
	out := i.BlockingActivityIDs[:0]
	for _, id := range i.BlockingActivityIDs {
		if id != activityID {
			out = append(out, id)
		}
	}
	i.BlockingActivityIDs = out
	delete(i.Bookmarks, activityID)
}

// Block adds activityID to the blocking set with its bookmark.
func (i *WorkflowInstance) Block(activityID string, b Bookmark) {
	if !i.IsBlockedOn(activityID) {
		i.BlockingActivityIDs = append(i.BlockingActivityIDs, activityID)
	}
	if i.Bookmarks == nil {
		i.Bookmarks = make(map[string]Bookmark)
	}
	i.Bookmarks[activityID] = b
}
