package expressions

import (
	"context"
	"sync"

	"github.com/oliveagle/jsonpath"
)

// JSONPathEvaluator looks values up in the scope document with JSONPath,
// e.g. "$.inputs.A" or "$.variables.items[0].name".
type JSONPathEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*jsonpath.Compiled
}

// NewJSONPathEvaluator creates a new JSONPath evaluator.
func NewJSONPathEvaluator() *JSONPathEvaluator {
	return &JSONPathEvaluator{
		cache: make(map[string]*jsonpath.Compiled),
	}
}

// Kind returns the evaluator identifier.
func (e *JSONPathEvaluator) Kind() string {
	return KindJSONPath
}

// Evaluate resolves the path against the scope document.
func (e *JSONPathEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	if expression == "" {
		return nil, emptyErr(KindJSONPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, runErr(KindJSONPath, expression, err)
	}

	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	doc, err := normalizeJSON(scope.Data())
	if err != nil {
		return nil, runErr(KindJSONPath, expression, err)
	}

	out, err := compiled.Lookup(doc)
	if err != nil {
		return nil, runErr(KindJSONPath, expression, err)
	}
	return out, nil
}

func (e *JSONPathEvaluator) getOrCompile(expression string) (*jsonpath.Compiled, error) {
	e.mu.RLock()
	if c, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.cache[expression]; ok {
		return c, nil
	}

	c, err := jsonpath.Compile(expression)
	if err != nil {
		return nil, compileErr(KindJSONPath, expression, err)
	}

	e.cache[expression] = c
	return c, nil
}

var _ Evaluator = (*JSONPathEvaluator)(nil)
