package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

type setLookup map[string]bool

func (s setLookup) Has(name string) bool { return s[name] }

func newValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator(
		setLookup{"AddTask": true, "WriteLineTask": true},
		setLookup{"js": true, "template": true},
	)
	require.NoError(t, err)
	return wv
}

func adderDefinition() *schema.WorkflowType {
	return &schema.WorkflowType{
		ID: "adder",
		Activities: []schema.ActivityRecord{
			{ID: "add", Type: "AddTask", IsStart: true, Properties: map[string]schema.Property{
				"A": schema.Expr("js", `input("A")`),
				"B": schema.Expr("js", `input("B")`),
			}},
			{ID: "print", Type: "WriteLineTask", Properties: map[string]schema.Property{
				"Text": schema.Expr("js", `lastResult().toString()`),
			}},
		},
		Transitions: []schema.Transition{
			{SourceActivityID: "add", SourceOutcome: "Done", DestinationActivityID: "print"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	report := newValidator(t).Validate(adderDefinition())
	assert.True(t, report.Valid())
	assert.Empty(t, report.Warnings)
}

func TestValidate_Nil(t *testing.T) {
	report := newValidator(t).Validate(nil)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "nil")
}

func TestValidate_NoStartActivity(t *testing.T) {
	def := adderDefinition()
	def.Activities[0].IsStart = false

	err := newValidator(t).ValidateDefinition(def)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDefinitionInvalid))
	assert.Contains(t, err.Error(), "no start activity")
}

func TestValidate_Structural(t *testing.T) {
	def := adderDefinition()
	def.ID = ""
	def.Activities[1].Type = ""

	report := newValidator(t).Validate(def)
	assert.False(t, report.Valid())
	assert.NotEmpty(t, report.Errors)
}

func TestValidate_DuplicateIDs(t *testing.T) {
	def := adderDefinition()
	def.Activities[1].ID = "add"
	def.Transitions = nil

	report := newValidator(t).Validate(def)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Message, "duplicate activity id")
	assert.Equal(t, "add", report.Errors[0].ActivityID)
}

func TestValidate_DanglingTransition(t *testing.T) {
	def := adderDefinition()
	def.Transitions = append(def.Transitions, schema.Transition{
		SourceActivityID: "print", SourceOutcome: "Done", DestinationActivityID: "ghost",
	})

	report := newValidator(t).Validate(def)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "transitions[1].destinationActivityId", report.Errors[0].Path)
}

func TestValidate_UnknownSyntax(t *testing.T) {
	def := adderDefinition()
	def.Activities[0].Properties["A"] = schema.Expr("python", "1")

	report := newValidator(t).Validate(def)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "activities[0].properties.A.syntax", report.Errors[0].Path)
}

func TestValidate_ExpressionWithoutSyntax(t *testing.T) {
	def := adderDefinition()
	def.Activities[0].Properties["A"] = schema.Property{Expression: "1 + 1"}

	report := newValidator(t).Validate(def)
	assert.False(t, report.Valid())
}

func TestValidate_UnknownTypeWarns(t *testing.T) {
	def := adderDefinition()
	def.Activities[1].Type = "FancyTask"

	report := newValidator(t).Validate(def)
	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0].Message, "FancyTask")
}

func TestValidate_UnreachableWarns(t *testing.T) {
	def := adderDefinition()
	def.Activities = append(def.Activities, schema.ActivityRecord{ID: "orphan", Type: "WriteLineTask"})

	report := newValidator(t).Validate(def)
	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "orphan", report.Warnings[0].ActivityID)
}

func TestValidate_CyclesAllowed(t *testing.T) {
	def := adderDefinition()
	def.Transitions = append(def.Transitions, schema.Transition{
		SourceActivityID: "print", SourceOutcome: "Done", DestinationActivityID: "add",
	})

	assert.NoError(t, newValidator(t).ValidateDefinition(def))
}

func TestValidate_InvalidInputSchema(t *testing.T) {
	def := adderDefinition()
	def.InputSchema = json.RawMessage(`{"type": 12}`)

	report := newValidator(t).Validate(def)
	require.False(t, report.Valid())
	assert.Equal(t, "inputSchema", report.Errors[0].Path)
}

func TestValidate_NilLookupsSkipChecks(t *testing.T) {
	wv, err := NewWorkflowValidator(nil, nil)
	require.NoError(t, err)

	def := adderDefinition()
	def.Activities[0].Type = "Unknown"
	def.Activities[0].Properties["A"] = schema.Expr("python", "1")
	assert.True(t, wv.Validate(def).Valid())
}

func TestValidateInput(t *testing.T) {
	wv := newValidator(t)
	inputSchema := []byte(`{
		"type": "object",
		"required": ["A", "B"],
		"properties": {"A": {"type": "number"}, "B": {"type": "number"}}
	}`)

	assert.NoError(t, wv.ValidateInput(map[string]any{"A": 10, "B": 22}, inputSchema))

	err := wv.ValidateInput(map[string]any{"A": "ten"}, inputSchema)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	assert.NoError(t, wv.ValidateInput(map[string]any{}, nil))
}
