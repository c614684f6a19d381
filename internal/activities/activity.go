package activities

import (
	"context"
	"time"

	"github.com/spf13/cast"
)

// Activity is one executable node type of a workflow graph.
type Activity interface {
	// Type is the stable name used for catalog lookup.
	Type() string
	// Outcomes lists the outcome names Execute may produce. input may be nil
	// when the catalog describes the type without a concrete record.
	Outcomes(input *Input) []string
	Execute(ctx context.Context, input *Input, wctx Context) (Result, error)
}

// Blocking is implemented by activities that can suspend the workflow until
// an external signal arrives. Such an activity halts from Execute and
// produces its outcomes from Resume.
type Blocking interface {
	Activity
	SignalKey(input *Input) string
	Resume(ctx context.Context, input *Input, wctx Context, payload map[string]any) (Result, error)
}

// EvaluationErrorRouter is implemented by activities that turn a failed
// property evaluation into an outcome instead of faulting the workflow.
type EvaluationErrorRouter interface {
	EvaluationErrorOutcome() string
}

// Context is the activity-facing view of a workflow execution context.
type Context interface {
	CorrelationID() string
	DefinitionID() string
	Input(name string) (any, bool)
	GetVariable(name string) (any, bool)
	SetVariable(name string, value any) error
	DeleteVariable(name string)
	GetLastResult() (any, bool)
	SetLastResult(value any) error
	// SetState and ClearState manage "$"-prefixed bookkeeping that
	// SetVariable refuses. GetVariable reads it back.
	SetState(name string, value any) error
	ClearState(name string)
}

// Result is what an execution step produced.
type Result struct {
	Outcomes []string
	// Halt suspends the workflow on this activity. Only honoured for Blocking activities.
	Halt bool
	// ResumeAt is set by activities that resume themselves at a point in time.
	ResumeAt *time.Time
}

// Outcomes returns a Result firing the given outcomes in order.
func Outcomes(names ...string) Result {
	return Result{Outcomes: names}
}

// Halt returns a Result that suspends the workflow.
func Halt() Result {
	return Result{Halt: true}
}

// HaltUntil returns a Result that suspends the workflow until t.
func HaltUntil(t time.Time) Result {
	return Result{Halt: true, ResumeAt: &t}
}

// Input is the materialised configuration of one activity execution.
type Input struct {
	ActivityID string
	Properties map[string]any
	// Source is the activity whose transition enqueued this one; empty for
	// start activities and resumed activities.
	Source string
	// Incoming lists the distinct activities with a transition into this one.
	Incoming []string
}

// Value returns a raw property value.
func (in *Input) Value(name string) (any, bool) {
	if in == nil {
		return nil, false
	}
	v, ok := in.Properties[name]
	return v, ok
}

// String returns a property as a string, or "" when absent or not convertible.
func (in *Input) String(name string) string {
	v, _ := in.Value(name)
	return cast.ToString(v)
}

// Bool converts a property to a boolean.
func (in *Input) Bool(name string) (bool, error) {
	v, _ := in.Value(name)
	return cast.ToBoolE(v)
}

// Strings converts a property to a string slice.
func (in *Input) Strings(name string) ([]string, error) {
	v, ok := in.Value(name)
	if !ok || v == nil {
		return nil, nil
	}
	return cast.ToStringSliceE(v)
}
