package engine

import "github.com/rendis/flowgraph/pkg/schema"

// ValidStatusTransitions defines the allowed instance status moves.
var ValidStatusTransitions = map[schema.WorkflowStatus][]schema.WorkflowStatus{
	schema.WorkflowStatusIdle:      {schema.WorkflowStatusExecuting},
	schema.WorkflowStatusExecuting: {schema.WorkflowStatusSuspended, schema.WorkflowStatusFaulted, schema.WorkflowStatusFinished},
	schema.WorkflowStatusSuspended: {schema.WorkflowStatusExecuting},
	schema.WorkflowStatusFaulted:   {},
	schema.WorkflowStatusFinished:  {},
}

func isValidStatusTransition(from, to schema.WorkflowStatus) bool {
	for _, allowed := range ValidStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition moves the instance to status to. An illegal move is an engine
// bug and is reported as EXECUTION_FAILED.
func (c *ExecutionContext) transition(to schema.WorkflowStatus) error {
	from := c.instance.Status
	if !isValidStatusTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeExecutionFailed,
			"invalid status transition: %s -> %s", from, to).
			WithCause(schema.NewError(schema.ErrCodeInvalidTransition, string(from)+" -> "+string(to))).
			WithDetails(map[string]any{"correlationId": c.instance.CorrelationID, "from": string(from), "to": string(to)})
	}
	c.instance.Status = to
	return nil
}
