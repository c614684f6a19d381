package expressions

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Resolver dispatches property expressions to the evaluator registered for
// their syntax. It is safe for concurrent use.
type Resolver struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{evaluators: make(map[string]Evaluator)}
}

// DefaultResolver returns a Resolver with every built-in evaluator registered,
// plus the aliases "javascript" (js) and "liquid" (template).
func DefaultResolver() (*Resolver, error) {
	celEval, err := NewCELEvaluator()
	if err != nil {
		return nil, err
	}

	r := NewResolver()
	regs := []struct {
		eval    Evaluator
		aliases []string
	}{
		{NewJavaScriptEvaluator(), []string{"javascript"}},
		{NewTemplateEvaluator(), []string{"liquid"}},
		{NewExprEvaluator(), nil},
		{celEval, nil},
		{NewJQEvaluator(), nil},
		{NewJSONPathEvaluator(), nil},
	}
	for _, reg := range regs {
		if err := r.Register(reg.eval, reg.aliases...); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an evaluator under its kind and any aliases.
// Returns a CONFLICT error if a name is already taken.
func (r *Resolver) Register(e Evaluator, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{e.Kind()}, aliases...)
	for _, name := range names {
		if _, exists := r.evaluators[name]; exists {
			return schema.NewErrorf(schema.ErrCodeConflict, "evaluator %q already registered", name)
		}
	}
	for _, name := range names {
		r.evaluators[name] = e
	}
	return nil
}

// Get returns the evaluator registered under kind.
func (r *Resolver) Get(kind string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[kind]
	return e, ok
}

// Has reports whether kind has an evaluator.
func (r *Resolver) Has(kind string) bool {
	_, ok := r.Get(kind)
	return ok
}

// Kinds returns all registered names, sorted.
func (r *Resolver) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.evaluators))
	for k := range r.evaluators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Evaluate resolves a single property. Literals are returned as deep copies.
func (r *Resolver) Evaluate(ctx context.Context, p schema.Property, scope *Scope) (any, error) {
	if p.IsLiteral() {
		return DeepCopy(p.Value), nil
	}
	e, ok := r.Get(p.Syntax)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
			"no evaluator registered for syntax %q", p.Syntax).
			WithDetails(map[string]any{"expression": p.Expression, "available": r.Kinds()})
	}
	return e.Evaluate(ctx, p.Expression, scope)
}

// Materialize evaluates every property into a fresh map, in name order.
// The first failure aborts and is reported with the property name.
func (r *Resolver) Materialize(ctx context.Context, props map[string]schema.Property, scope *Scope) (map[string]any, error) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]any, len(props))
	for _, name := range names {
		val, err := r.Evaluate(ctx, props[name], scope)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
				"property %q", name).WithCause(err)
		}
		out[name] = val
	}
	return out, nil
}
