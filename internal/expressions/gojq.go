package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"
)

// JQEvaluator evaluates jq filters over the scope document. A filter with one
// output returns it directly; several outputs are collected into []any.
type JQEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQEvaluator creates a new gojq evaluator.
func NewJQEvaluator() *JQEvaluator {
	return &JQEvaluator{
		cache: make(map[string]*gojq.Code),
	}
}

// Kind returns the evaluator identifier.
func (e *JQEvaluator) Kind() string {
	return KindJQ
}

// Evaluate runs the filter with the scope document as input.
func (e *JQEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	if expression == "" {
		return nil, emptyErr(KindJQ)
	}

	code, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	doc, err := normalizeJSON(scope.Data())
	if err != nil {
		return nil, runErr(KindJQ, expression, err)
	}

	iter := code.RunWithContext(ctx, doc)
	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, runErr(KindJQ, expression, err)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

func (e *JQEvaluator) getOrCompile(expression string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, compileErr(KindJQ, expression, err)
	}

	code, err := gojq.Compile(query,
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, compileErr(KindJQ, expression, err)
	}

	e.cache[expression] = code
	return code, nil
}

// normalizeJSON round-trips v through encoding/json so the document only holds
// types gojq accepts (float64 numbers, map[string]any, []any).
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Evaluator = (*JQEvaluator)(nil)
