package expressions

import (
	"context"
	"sync"

	"github.com/dop251/goja"
)

// JavaScriptEvaluator runs script expressions on goja. Each evaluation gets a
// fresh runtime; only compiled programs are shared.
//
// Helpers available to scripts:
//
//	input(name)      workflow input parameter
//	variable(name)   workflow variable
//	lastResult()     result of the previous activity
//	correlationId()  id of the running instance
//
// plus the read-only objects inputs, variables and workflow.
type JavaScriptEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*goja.Program
}

// NewJavaScriptEvaluator creates a new goja-backed evaluator.
func NewJavaScriptEvaluator() *JavaScriptEvaluator {
	return &JavaScriptEvaluator{
		cache: make(map[string]*goja.Program),
	}
}

// Kind returns the evaluator identifier.
func (e *JavaScriptEvaluator) Kind() string {
	return KindJavaScript
}

// Evaluate runs the script and exports its completion value to Go.
// undefined and null both export as nil.
func (e *JavaScriptEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	if expression == "" {
		return nil, emptyErr(KindJavaScript)
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if err := bindScope(vm, scope); err != nil {
		return nil, runErr(KindJavaScript, expression, err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	val, err := vm.RunProgram(prg)
	if err != nil {
		return nil, runErr(KindJavaScript, expression, err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

func (e *JavaScriptEvaluator) getOrCompile(expression string) (*goja.Program, error) {
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

	prg, err := goja.Compile("", expression, true)
	if err != nil {
		return nil, compileErr(KindJavaScript, expression, err)
	}

	e.cache[expression] = prg
	return prg, nil
}

func bindScope(vm *goja.Runtime, scope *Scope) error {
	if scope == nil {
		scope = &Scope{}
	}
	// scripts get their own copies so writes never reach the caller's scope
	data := DeepCopyMap(scope.Data())
	inputs := data["inputs"].(map[string]any)
	vars := data["variables"].(map[string]any)
	last := data["lastResult"]

	bindings := map[string]any{
		"input":         func(name string) any { return inputs[name] },
		"variable":      func(name string) any { return vars[name] },
		"lastResult":    func() any { return last },
		"correlationId": func() string { return scope.CorrelationID },
		"inputs":        inputs,
		"variables":     vars,
		"workflow":      data["workflow"],
	}
	for name, v := range bindings {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

var _ Evaluator = (*JavaScriptEvaluator)(nil)
