package validation

import "github.com/rendis/flowgraph/pkg/schema"

// Validator checks workflow definitions before execution and start input
// against a definition's input schema (JSON Schema Draft 2020-12).
type Validator interface {
	ValidateDefinition(def *schema.WorkflowType) error
	ValidateInput(input map[string]any, inputSchema []byte) error
}

// Lookup reports whether a name is registered. The activity catalog and the
// expression resolver both satisfy it.
type Lookup interface {
	Has(name string) bool
}
