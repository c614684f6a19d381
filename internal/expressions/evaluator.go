package expressions

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Evaluator computes the value of one expression against a Scope.
// Implementations may cache parsed forms keyed by the expression string but
// keep no other state between calls.
type Evaluator interface {
	Kind() string
	Evaluate(ctx context.Context, expression string, scope *Scope) (any, error)
}

// Evaluator kinds registered by DefaultResolver.
const (
	KindJavaScript = "js"
	KindTemplate   = "template"
	KindExpr       = "expr"
	KindCEL        = "cel"
	KindJQ         = "jq"
	KindJSONPath   = "jsonpath"
)

func compileErr(kind, expression string, err error) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeEvaluationFailed,
		"%s compile error in %q", kind, expression).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "phase": "compile"})
}

func runErr(kind, expression string, err error) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeEvaluationFailed,
		"%s evaluation failed for %q", kind, expression).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression, "phase": "run"})
}

func emptyErr(kind string) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeEvaluationFailed, "empty %s expression", kind)
}
