package schema

// Event type constants for the instance event log and stream.
const (
	EventWorkflowStarting  = "workflow_starting"
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowResumed   = "workflow_resumed"
	EventWorkflowSuspended = "workflow_suspended"
	EventWorkflowFaulted   = "workflow_faulted"
	EventWorkflowFinished  = "workflow_finished"

	EventActivityExecuting = "activity_executing"
	EventActivityExecuted  = "activity_executed"
)

// WorkflowStatus represents the lifecycle state of a workflow instance.
type WorkflowStatus string

const (
	WorkflowStatusIdle      WorkflowStatus = "Idle"
	WorkflowStatusExecuting WorkflowStatus = "Executing"
	WorkflowStatusSuspended WorkflowStatus = "Suspended"
	WorkflowStatusFaulted   WorkflowStatus = "Faulted"
	WorkflowStatusFinished  WorkflowStatus = "Finished"
)

// IsTerminal reports whether no further execution can happen from s.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusFaulted || s == WorkflowStatusFinished
}

// Well-known outcome names.
const (
	OutcomeDone   = "Done"
	OutcomeError  = "Error"
	OutcomeTrue   = "True"
	OutcomeFalse  = "False"
	OutcomeJoined = "Joined"
)
