package engine

import "github.com/rendis/flowgraph/pkg/schema"

type transitionKey struct {
	source  string
	outcome string
}

// TransitionTable indexes a definition's transitions by (source, outcome).
type TransitionTable struct {
	destinations map[transitionKey][]string
	incoming     map[string][]string
}

// NewTransitionTable indexes def. Destinations keep declaration order.
func NewTransitionTable(def *schema.WorkflowType) *TransitionTable {
	t := &TransitionTable{
		destinations: make(map[transitionKey][]string, len(def.Transitions)),
		incoming:     make(map[string][]string),
	}
	seen := make(map[transitionKey]bool)
	for _, tr := range def.Transitions {
		key := transitionKey{tr.SourceActivityID, tr.SourceOutcome}
		t.destinations[key] = append(t.destinations[key], tr.DestinationActivityID)

		edge := transitionKey{tr.SourceActivityID, tr.DestinationActivityID}
		if !seen[edge] {
			seen[edge] = true
			t.incoming[tr.DestinationActivityID] = append(t.incoming[tr.DestinationActivityID], tr.SourceActivityID)
		}
	}
	return t
}

// Destinations returns the activities reached when source fires outcome.
func (t *TransitionTable) Destinations(source, outcome string) []string {
	return t.destinations[transitionKey{source, outcome}]
}

// Incoming returns the distinct activities with a transition into dest.
func (t *TransitionTable) Incoming(dest string) []string {
	return append([]string(nil), t.incoming[dest]...)
}
