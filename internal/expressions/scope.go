package expressions

import "encoding/json"

// Scope is the read view of an execution context handed to evaluators.
// Builders must pass copies; evaluators never write back.
type Scope struct {
	Inputs        map[string]any
	Variables     map[string]any
	LastResult    any
	CorrelationID string
	DefinitionID  string
}

// NewScope builds a Scope over deep copies of inputs and variables.
func NewScope(inputs, variables map[string]any, lastResult any, correlationID, definitionID string) *Scope {
	return &Scope{
		Inputs:        DeepCopyMap(inputs),
		Variables:     DeepCopyMap(variables),
		LastResult:    DeepCopy(lastResult),
		CorrelationID: correlationID,
		DefinitionID:  definitionID,
	}
}

// Input returns a named workflow input, or nil.
func (s *Scope) Input(name string) any {
	if s == nil {
		return nil
	}
	return s.Inputs[name]
}

// Variable returns a named variable, or nil.
func (s *Scope) Variable(name string) any {
	if s == nil {
		return nil
	}
	return s.Variables[name]
}

// Data renders the scope as the document seen by data-oriented evaluators
// (cel, jq, jsonpath, template):
//
//	{"inputs": {...}, "variables": {...}, "lastResult": ..., "workflow": {"correlationId", "definitionId"}}
func (s *Scope) Data() map[string]any {
	if s == nil {
		s = &Scope{}
	}
	inputs := s.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	vars := s.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	return map[string]any{
		"inputs":     inputs,
		"variables":  vars,
		"lastResult": s.LastResult,
		"workflow": map[string]any{
			"correlationId": s.CorrelationID,
			"definitionId":  s.DefinitionID,
		},
	}
}

// DeepCopyMap creates a deep copy of a map[string]any.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = DeepCopy(v)
	}
	return cp
}

// DeepCopy recursively copies maps, slices and raw JSON; other values are
// returned as is.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = DeepCopy(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
