package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func newTestContext(input map[string]any) *ExecutionContext {
	inst := &schema.WorkflowInstance{
		DefinitionID:  "def",
		CorrelationID: "corr",
		Status:        schema.WorkflowStatusIdle,
		Variables:     map[string]any{VarInput: input},
	}
	return newExecutionContext(&schema.WorkflowType{ID: "def"}, inst)
}

func TestExecutionContext_Variables(t *testing.T) {
	wctx := newTestContext(map[string]any{"name": "ada"})

	require.NoError(t, wctx.SetVariable("count", 1))
	require.NoError(t, wctx.SetVariable("count", 2))
	v, ok := wctx.GetVariable("count")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = wctx.GetVariable("missing")
	assert.False(t, ok)

	in, ok := wctx.Input("name")
	assert.True(t, ok)
	assert.Equal(t, "ada", in)

	assert.Equal(t, map[string]any{"count": 2}, wctx.Variables())

	wctx.DeleteVariable("count")
	assert.Empty(t, wctx.Variables())
}

func TestExecutionContext_ReservedNames(t *testing.T) {
	wctx := newTestContext(nil)

	assert.True(t, schema.IsCode(wctx.SetVariable("", 1), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(wctx.SetVariable(VarInput, 1), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(wctx.SetVariable(VarLastResult, 1), schema.ErrCodeValidation))

	assert.True(t, schema.IsCode(wctx.SetVariable("$join:j", []any{"x"}), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(wctx.SetVariable("$anything", 1), schema.ErrCodeValidation))

	wctx.DeleteVariable(VarInput)
	_, ok := wctx.instance.Variables[VarInput]
	assert.True(t, ok)
}

func TestExecutionContext_State(t *testing.T) {
	wctx := newTestContext(nil)

	require.NoError(t, wctx.SetState("$join:j", []string{"a"}))
	v, ok := wctx.GetVariable("$join:j")
	require.True(t, ok)
	assert.Equal(t, []any{"a"}, v)
	assert.Empty(t, wctx.Variables())

	wctx.DeleteVariable("$join:j")
	_, ok = wctx.GetVariable("$join:j")
	assert.True(t, ok, "DeleteVariable cannot drop engine state")

	wctx.ClearState("$join:j")
	_, ok = wctx.GetVariable("$join:j")
	assert.False(t, ok)

	assert.True(t, schema.IsCode(wctx.SetState("plain", 1), schema.ErrCodeValidation))
	assert.True(t, schema.IsCode(wctx.SetState(VarLastResult, 1), schema.ErrCodeValidation))
}

func TestExecutionContext_ValuesAreCopied(t *testing.T) {
	wctx := newTestContext(nil)
	orig := map[string]any{"items": []any{"a"}}

	require.NoError(t, wctx.SetVariable("doc", orig))
	orig["items"] = []any{"mutated"}

	got, _ := wctx.GetVariable("doc")
	got.(map[string]any)["extra"] = true

	again, _ := wctx.GetVariable("doc")
	assert.Equal(t, map[string]any{"items": []any{"a"}}, again)
}

func TestExecutionContext_LastResult(t *testing.T) {
	wctx := newTestContext(nil)
	_, ok := wctx.GetLastResult()
	assert.False(t, ok)

	require.NoError(t, wctx.SetLastResult(int64(32)))
	v, ok := wctx.GetLastResult()
	assert.True(t, ok)
	assert.Equal(t, int64(32), v)
	assert.NotContains(t, wctx.Variables(), VarLastResult)

	assert.Error(t, wctx.SetLastResult(make(chan int)))
}

func TestExecutionContext_MergeInput(t *testing.T) {
	wctx := newTestContext(map[string]any{"a": 1})

	require.NoError(t, wctx.mergeInput(map[string]any{"b": "two"}))
	assert.Equal(t, map[string]any{"a": 1, "b": "two"}, wctx.Inputs())
	v, _ := wctx.GetVariable("b")
	assert.Equal(t, "two", v)

	require.NoError(t, wctx.mergeInput(nil))
}

func TestExecutionContext_MergeInputRejectsReservedKeys(t *testing.T) {
	wctx := newTestContext(map[string]any{"a": 1})
	require.NoError(t, wctx.SetState("$join:j", []string{"left"}))

	err := wctx.mergeInput(map[string]any{"$join:j": []any{"left", "right"}, "b": 2})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation), "got %v", err)

	assert.Equal(t, map[string]any{"a": 1}, wctx.Inputs())
	v, _ := wctx.GetVariable("$join:j")
	assert.Equal(t, []any{"left"}, v)
	_, ok := wctx.GetVariable("b")
	assert.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to schema.WorkflowStatus
		ok       bool
	}{
		{schema.WorkflowStatusIdle, schema.WorkflowStatusExecuting, true},
		{schema.WorkflowStatusExecuting, schema.WorkflowStatusSuspended, true},
		{schema.WorkflowStatusExecuting, schema.WorkflowStatusFinished, true},
		{schema.WorkflowStatusExecuting, schema.WorkflowStatusFaulted, true},
		{schema.WorkflowStatusSuspended, schema.WorkflowStatusExecuting, true},
		{schema.WorkflowStatusIdle, schema.WorkflowStatusFinished, false},
		{schema.WorkflowStatusSuspended, schema.WorkflowStatusFinished, false},
		{schema.WorkflowStatusFinished, schema.WorkflowStatusExecuting, false},
		{schema.WorkflowStatusFaulted, schema.WorkflowStatusExecuting, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			wctx := newTestContext(nil)
			wctx.instance.Status = tc.from
			err := wctx.transition(tc.to)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, wctx.Status())
				return
			}
			assert.True(t, schema.IsCode(err, schema.ErrCodeExecutionFailed))
			assert.Equal(t, tc.from, wctx.Status())
		})
	}
}

func TestTransitionTable(t *testing.T) {
	def := &schema.WorkflowType{
		Transitions: []schema.Transition{
			edge("a", "Done", "c"),
			edge("a", "Done", "b"),
			edge("a", "Error", "b"),
			edge("b", "Done", "c"),
		},
	}
	table := NewTransitionTable(def)

	assert.Equal(t, []string{"c", "b"}, table.Destinations("a", "Done"))
	assert.Empty(t, table.Destinations("a", "Missing"))
	assert.Equal(t, []string{"a"}, table.Incoming("b"))
	assert.Equal(t, []string{"a", "b"}, table.Incoming("c"))
}
