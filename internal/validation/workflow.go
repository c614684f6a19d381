package validation

import (
	"errors"

	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowValidator runs the definition pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (ids, transitions, start activities, syntaxes, input schema)
// 3. Graph (reachability warnings)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	types      Lookup
	syntaxes   Lookup
}

var _ Validator = (*WorkflowValidator)(nil)

// NewWorkflowValidator creates a WorkflowValidator. Either lookup may be nil
// to skip the corresponding check.
func NewWorkflowValidator(types, syntaxes Lookup) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv, types: types, syntaxes: syntaxes}, nil
}

// Validate returns the aggregated report. Structural errors short-circuit.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowType) *schema.DefinitionReport {
	report := &schema.DefinitionReport{}
	if def == nil {
		report.Fail("/", "", "workflow definition is nil")
		return report
	}

	if err := wv.jsonSchema.ValidateStructure(def); err != nil {
		addStructural(report, err)
		return report
	}

	report.Merge(validateSemantic(def, wv.types, wv.syntaxes))
	if len(def.InputSchema) > 0 {
		if err := wv.jsonSchema.CompileSchema(def.InputSchema); err != nil {
			report.Fail("inputSchema", "", "invalid input schema: %v", err)
		}
	}
	if report.Valid() {
		report.Merge(validateGraph(def))
	}
	return report
}

// ValidateDefinition returns a DEFINITION_INVALID error for a rejected definition.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowType) error {
	return wv.Validate(def).Err()
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return wv.jsonSchema.ValidateInput(input, inputSchema)
}

func addStructural(report *schema.DefinitionReport, err error) {
	var we *schema.WorkflowError
	if errors.As(err, &we) && we.Details != nil {
		if violations, ok := we.Details["violations"].([]string); ok {
			for _, v := range violations {
				report.Fail("/", "", "%s", v)
			}
			return
		}
	}
	report.Fail("/", "", "%s", err.Error())
}
