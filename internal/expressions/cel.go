package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEvaluator evaluates Common Expression Language expressions, typically
// branch conditions and start predicates. The environment declares:
//   - inputs:     map(string, dyn)
//   - variables:  map(string, dyn)
//   - workflow:   map(string, dyn)
//   - lastResult: dyn
type CELEvaluator struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEvaluator creates a CEL evaluator with a sandboxed environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("inputs", mapType),
		cel.Variable("variables", mapType),
		cel.Variable("workflow", mapType),
		cel.Variable("lastResult", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEvaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Kind returns the evaluator identifier.
func (e *CELEvaluator) Kind() string {
	return KindCEL
}

// Evaluate compiles (or retrieves from cache) the expression and evaluates it.
func (e *CELEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	if expression == "" {
		return nil, emptyErr(KindCEL)
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, scope.Data())
	if err != nil {
		return nil, runErr(KindCEL, expression, err)
	}
	return out.Value(), nil
}

func (e *CELEvaluator) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileErr(KindCEL, expression, issues.Err())
	}

	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, compileErr(KindCEL, expression, err)
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Evaluator = (*CELEvaluator)(nil)
