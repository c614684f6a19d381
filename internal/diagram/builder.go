package diagram

import (
	"fmt"
	"slices"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/pkg/schema"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// Build constructs a DiagramModel from a definition and, optionally, an
// instance of it. The instance's execution log, blocking set and fault
// become status overlays and mark the transitions that were taken.
func Build(def *schema.WorkflowType, inst *schema.WorkflowInstance) (*DiagramModel, error) {
	if def == nil {
		return nil, fmt.Errorf("diagram: definition is required")
	}
	if inst != nil && inst.DefinitionID != "" && inst.DefinitionID != def.ID {
		return nil, fmt.Errorf("diagram: instance %s belongs to definition %s, not %s",
			inst.CorrelationID, inst.DefinitionID, def.ID)
	}

	nodes := make([]*Node, 0, len(def.Activities)+2)
	nodes = append(nodes, &Node{ID: startID, Label: "Start", Kind: NodeKindStart})
	for i := range def.Activities {
		rec := &def.Activities[i]
		nodes = append(nodes, &Node{
			ID:    rec.ID,
			Label: fmt.Sprintf("%s\n(%s)", rec.ID, rec.Type),
			Kind:  typeToKind(rec.Type),
		})
	}

	edges, err := buildEdges(def)
	if err != nil {
		return nil, err
	}
	if inst != nil {
		overlayInstance(nodes, edges, inst)
	}

	levels := buildLevels(def)
	if hasLeaves(def) {
		nodes = append(nodes, &Node{ID: endID, Label: "End", Kind: NodeKindEnd})
		levels = append(levels, []string{endID})
	}

	title := def.Name
	if title == "" {
		title = def.ID
	}
	if inst != nil {
		title = fmt.Sprintf("%s [%s %s]", title, inst.CorrelationID, inst.Status)
	}
	return &DiagramModel{Title: title, Nodes: nodes, Edges: edges, Levels: levels}, nil
}

func typeToKind(typeName string) NodeKind {
	switch typeName {
	case activities.TypeIfElse:
		return NodeKindDecision
	case activities.TypeFork:
		return NodeKindFork
	case activities.TypeJoin:
		return NodeKindJoin
	case activities.TypeSignal, activities.TypeTimer:
		return NodeKindBlocking
	case activities.TypeFault:
		return NodeKindFault
	default:
		return NodeKindTask
	}
}

// buildEdges adds start edges, one edge per transition and end edges for
// activities without outgoing transitions.
func buildEdges(def *schema.WorkflowType) ([]Edge, error) {
	var edges []Edge
	for _, rec := range def.StartActivities() {
		edges = append(edges, Edge{From: startID, To: rec.ID})
	}
	for _, t := range def.Transitions {
		if _, ok := def.Activity(t.SourceActivityID); !ok {
			return nil, fmt.Errorf("diagram: transition from unknown activity %q", t.SourceActivityID)
		}
		if _, ok := def.Activity(t.DestinationActivityID); !ok {
			return nil, fmt.Errorf("diagram: transition to unknown activity %q", t.DestinationActivityID)
		}
		edges = append(edges, Edge{From: t.SourceActivityID, To: t.DestinationActivityID, Label: t.SourceOutcome})
	}
	for _, rec := range def.Activities {
		if !hasOutgoing(def, rec.ID) {
			edges = append(edges, Edge{From: rec.ID, To: endID})
		}
	}
	return edges, nil
}

func hasOutgoing(def *schema.WorkflowType, id string) bool {
	return slices.ContainsFunc(def.Transitions, func(t schema.Transition) bool {
		return t.SourceActivityID == id
	})
}

func hasLeaves(def *schema.WorkflowType) bool {
	return slices.ContainsFunc(def.Activities, func(rec schema.ActivityRecord) bool {
		return !hasOutgoing(def, rec.ID)
	})
}

// buildLevels places every activity at its breadth-first distance from the
// start activities. Back edges of cycles do not move a node. Activities no
// start reaches share one trailing level.
func buildLevels(def *schema.WorkflowType) [][]string {
	levels := [][]string{{startID}}
	seen := make(map[string]bool, len(def.Activities))

	var frontier []string
	for _, rec := range def.StartActivities() {
		frontier = append(frontier, rec.ID)
		seen[rec.ID] = true
	}
	for len(frontier) > 0 {
		levels = append(levels, frontier)
		var next []string
		for _, id := range frontier {
			for _, t := range def.Transitions {
				if t.SourceActivityID == id && !seen[t.DestinationActivityID] {
					seen[t.DestinationActivityID] = true
					next = append(next, t.DestinationActivityID)
				}
			}
		}
		frontier = next
	}

	var unreachable []string
	for _, rec := range def.Activities {
		if !seen[rec.ID] {
			unreachable = append(unreachable, rec.ID)
		}
	}
	if len(unreachable) > 0 {
		levels = append(levels, unreachable)
	}
	return levels
}

// overlayInstance applies the instance's runtime state to nodes and edges.
func overlayInstance(nodes []*Node, edges []Edge, inst *schema.WorkflowInstance) {
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	overlay := func(id string) *StatusOverlay {
		n, ok := byID[id]
		if !ok {
			return nil
		}
		if n.Status == nil {
			n.Status = &StatusOverlay{Status: StatusExecuted}
		}
		return n.Status
	}

	fired := make(map[[2]string]bool)
	for _, e := range inst.ExecutionLog {
		st := overlay(e.ActivityID)
		if st == nil {
			continue
		}
		st.Runs++
		if e.Outcome != "" {
			fired[[2]string{e.ActivityID, e.Outcome}] = true
			if !slices.Contains(st.Outcomes, e.Outcome) {
				st.Outcomes = append(st.Outcomes, e.Outcome)
			}
		}
		if e.Error != "" {
			st.Error = e.Error
		}
	}
	for i := range edges {
		if edges[i].Label != "" && fired[[2]string{edges[i].From, edges[i].Label}] {
			edges[i].Taken = true
		}
	}

	for _, id := range inst.BlockingActivityIDs {
		if st := overlay(id); st != nil {
			st.Status = StatusSuspended
		}
	}
	if inst.FaultedActivityID != "" {
		if st := overlay(inst.FaultedActivityID); st != nil {
			st.Status = StatusFaulted
			st.Error = inst.FaultMessage
		}
	}
}
