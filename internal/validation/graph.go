package validation

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// validateGraph warns about activities that no start activity can reach.
// Cycles are legal: transitions describe control flow, not dependencies.
func validateGraph(def *schema.WorkflowType) *schema.DefinitionReport {
	report := &schema.DefinitionReport{}

	next := make(map[string][]string, len(def.Activities))
	for _, t := range def.Transitions {
		next[t.SourceActivityID] = append(next[t.SourceActivityID], t.DestinationActivityID)
	}

	reachable := make(map[string]bool, len(def.Activities))
	var queue []string
	for _, a := range def.StartActivities() {
		reachable[a.ID] = true
		queue = append(queue, a.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dest := range next[id] {
			if !reachable[dest] {
				reachable[dest] = true
				queue = append(queue, dest)
			}
		}
	}

	for i, a := range def.Activities {
		if !reachable[a.ID] {
			report.Warn(fmt.Sprintf("activities[%d]", i), a.ID,
				"activity %q is unreachable from any start activity", a.ID)
		}
	}
	return report
}
