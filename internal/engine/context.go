package engine

import (
	"maps"
	"strings"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/serialization"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Reserved variable names. Names starting with "$" are engine state and are
// hidden from Variables() and evaluator scopes.
const (
	VarInput      = "$input"
	VarLastResult = "$lastResult"
)

// ExecutionContext is the mutable state of one workflow instance while a
// manager call runs it. It is not safe for concurrent use; the manager runs
// one loop per instance at a time.
type ExecutionContext struct {
	instance   *schema.WorkflowInstance
	definition *schema.WorkflowType
}

var _ activities.Context = (*ExecutionContext)(nil)

func newExecutionContext(def *schema.WorkflowType, inst *schema.WorkflowInstance) *ExecutionContext {
	if inst.Variables == nil {
		inst.Variables = make(map[string]any)
	}
	return &ExecutionContext{instance: inst, definition: def}
}

func (c *ExecutionContext) CorrelationID() string { return c.instance.CorrelationID }
func (c *ExecutionContext) DefinitionID() string  { return c.instance.DefinitionID }

// Status returns the current lifecycle status.
func (c *ExecutionContext) Status() schema.WorkflowStatus { return c.instance.Status }

// Definition returns the workflow definition being executed.
func (c *ExecutionContext) Definition() *schema.WorkflowType { return c.definition }

// BlockingActivityIDs returns a copy of the blocking set.
func (c *ExecutionContext) BlockingActivityIDs() []string {
	return append([]string(nil), c.instance.BlockingActivityIDs...)
}

// Input returns a workflow input parameter.
func (c *ExecutionContext) Input(name string) (any, bool) {
	inputs, _ := c.instance.Variables[VarInput].(map[string]any)
	v, ok := inputs[name]
	return expressions.DeepCopy(v), ok
}

// Inputs returns a copy of all workflow input parameters.
func (c *ExecutionContext) Inputs() map[string]any {
	inputs, _ := c.instance.Variables[VarInput].(map[string]any)
	if inputs == nil {
		return map[string]any{}
	}
	return expressions.DeepCopyMap(inputs)
}

// GetVariable returns a copy of a variable's value.
func (c *ExecutionContext) GetVariable(name string) (any, bool) {
	v, ok := c.instance.Variables[name]
	return expressions.DeepCopy(v), ok
}

// SetVariable stores a normalized copy of value. Last write wins. Names
// starting with "$" belong to the engine and are rejected.
func (c *ExecutionContext) SetVariable(name string, value any) error {
	if err := checkVariableName(name); err != nil {
		return err
	}
	return c.set(name, value)
}

func (c *ExecutionContext) DeleteVariable(name string) {
	if isReserved(name) {
		return
	}
	delete(c.instance.Variables, name)
}

// SetState stores activity bookkeeping under a reserved "$" name.
func (c *ExecutionContext) SetState(name string, value any) error {
	if !isReserved(name) || name == VarInput || name == VarLastResult {
		return schema.NewErrorf(schema.ErrCodeValidation, "state name %q must start with $", name)
	}
	return c.set(name, value)
}

func (c *ExecutionContext) ClearState(name string) {
	if !isReserved(name) || name == VarInput || name == VarLastResult {
		return
	}
	delete(c.instance.Variables, name)
}

func isReserved(name string) bool { return strings.HasPrefix(name, "$") }

func checkVariableName(name string) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "variable name is required")
	}
	if isReserved(name) {
		return schema.NewErrorf(schema.ErrCodeValidation, "variable %q is reserved", name)
	}
	return nil
}

// Variables returns a copy of the user-visible variables.
func (c *ExecutionContext) Variables() map[string]any {
	out := make(map[string]any, len(c.instance.Variables))
	for k, v := range c.instance.Variables {
		if isReserved(k) {
			continue
		}
		out[k] = expressions.DeepCopy(v)
	}
	return out
}

func (c *ExecutionContext) SetLastResult(value any) error {
	return c.set(VarLastResult, value)
}

func (c *ExecutionContext) GetLastResult() (any, bool) {
	v, ok := c.instance.Variables[VarLastResult]
	return expressions.DeepCopy(v), ok
}

func (c *ExecutionContext) set(name string, value any) error {
	normalized, err := serialization.Normalize(value)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "variable %q", name).WithCause(err)
	}
	c.instance.Variables[name] = normalized
	return nil
}

// mergeInput adds resume input to the workflow inputs and to the variables.
func (c *ExecutionContext) mergeInput(input map[string]any) error {
	if len(input) == 0 {
		return nil
	}
	for name := range input {
		if err := checkVariableName(name); err != nil {
			return schema.NewError(schema.ErrCodeValidation, "resume input").WithCause(err)
		}
	}
	normalized, err := serialization.Normalize(input)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "resume input").WithCause(err)
	}
	extra := normalized.(map[string]any)

	inputs, _ := c.instance.Variables[VarInput].(map[string]any)
	merged := make(map[string]any, len(inputs)+len(extra))
	maps.Copy(merged, inputs)
	maps.Copy(merged, extra)
	c.instance.Variables[VarInput] = merged

	for name, v := range extra {
		if err := c.SetVariable(name, v); err != nil {
			return err
		}
	}
	return nil
}

// scope builds the evaluator read view.
func (c *ExecutionContext) scope() *expressions.Scope {
	last := c.instance.Variables[VarLastResult]
	inputs, _ := c.instance.Variables[VarInput].(map[string]any)
	return expressions.NewScope(inputs, c.Variables(), last, c.instance.CorrelationID, c.instance.DefinitionID)
}

func (c *ExecutionContext) appendLog(entry schema.ExecutionLogEntry) {
	c.instance.ExecutionLog = append(c.instance.ExecutionLog, entry)
}
