package activities

import (
	"context"
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// SetVariableTask stores property Value under the variable named by property Name.
type SetVariableTask struct{}

func (a *SetVariableTask) Type() string { return TypeSetVariable }

func (a *SetVariableTask) Outcomes(*Input) []string {
	return []string{schema.OutcomeDone}
}

func (a *SetVariableTask) Execute(_ context.Context, input *Input, wctx Context) (Result, error) {
	name := input.String("Name")
	if name == "" {
		return Result{}, fmt.Errorf("property Name is required")
	}
	value, _ := input.Value("Value")
	if err := wctx.SetVariable(name, value); err != nil {
		return Result{}, err
	}
	return Outcomes(schema.OutcomeDone), nil
}

// FaultTask always fails with property Message. Useful to test error routing
// and to stop a branch explicitly.
type FaultTask struct{}

func (a *FaultTask) Type() string { return TypeFault }

func (a *FaultTask) Outcomes(*Input) []string { return nil }

func (a *FaultTask) Execute(_ context.Context, input *Input, _ Context) (Result, error) {
	msg := input.String("Message")
	if msg == "" {
		msg = "fault activity reached"
	}
	return Result{}, fmt.Errorf("%s", msg)
}

// MissingActivity stands in for a type the catalog could not resolve. It
// fires Error so the graph's own error transitions can route around it.
type MissingActivity struct {
	TypeName string
}

// NewMissingActivity returns the placeholder for typeName.
func NewMissingActivity(typeName string) *MissingActivity {
	return &MissingActivity{TypeName: typeName}
}

func (a *MissingActivity) Type() string { return TypeMissing }

func (a *MissingActivity) Outcomes(*Input) []string {
	return []string{schema.OutcomeError}
}

func (a *MissingActivity) Execute(_ context.Context, _ *Input, wctx Context) (Result, error) {
	if err := wctx.SetLastResult(fmt.Sprintf("activity type %q is not registered", a.TypeName)); err != nil {
		return Result{}, err
	}
	return Outcomes(schema.OutcomeError), nil
}

func (a *MissingActivity) EvaluationErrorOutcome() string { return schema.OutcomeError }
