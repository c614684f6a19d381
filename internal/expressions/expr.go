package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEvaluator evaluates expr-lang expressions. The environment exposes the
// same helper functions as the JavaScript evaluator (input, variable,
// lastResult, correlationId) and the inputs, variables and workflow maps.
// Compiled programs are cached and shared across goroutines.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates a new expr-lang evaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Kind returns the evaluator identifier.
func (e *ExprEvaluator) Kind() string {
	return KindExpr
}

// Evaluate compiles (or retrieves from cache) the expression and runs it.
func (e *ExprEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	if expression == "" {
		return nil, emptyErr(KindExpr)
	}
	if err := ctx.Err(); err != nil {
		return nil, runErr(KindExpr, expression, err)
	}

	env := exprEnv(scope)
	prg, err := e.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, runErr(KindExpr, expression, err)
	}
	return out, nil
}

func (e *ExprEvaluator) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
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

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, compileErr(KindExpr, expression, err)
	}

	e.cache[expression] = prg
	return prg, nil
}

// exprEnv has the same shape for every scope so cached programs stay valid.
func exprEnv(scope *Scope) map[string]any {
	if scope == nil {
		scope = &Scope{}
	}
	data := scope.Data()
	return map[string]any{
		"inputs":        data["inputs"],
		"variables":     data["variables"],
		"workflow":      data["workflow"],
		"input":         func(name string) any { return scope.Input(name) },
		"variable":      func(name string) any { return scope.Variable(name) },
		"lastResult":    func() any { return scope.LastResult },
		"correlationId": func() string { return scope.CorrelationID },
	}
}

var _ Evaluator = (*ExprEvaluator)(nil)
