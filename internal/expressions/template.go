package expressions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// TemplateEvaluator renders text templates. References are written as
// {{ path }} or ${{ path }}, where path starts with one of the namespaces
// inputs, variables, lastResult or workflow and continues with dot-separated
// keys or list indexes:
//
//	"Total: {{ lastResult }} for {{ inputs.customer.name }}"
//
// The result is always a string. Parsed templates are cached.
type TemplateEvaluator struct {
	mu    sync.RWMutex
	cache map[string][]segment
}

// segment is either literal text or a reference path.
type segment struct {
	text string
	ref  string
	path []string
}

// NewTemplateEvaluator creates a new template evaluator.
func NewTemplateEvaluator() *TemplateEvaluator {
	return &TemplateEvaluator{
		cache: make(map[string][]segment),
	}
}

// Kind returns the evaluator identifier.
func (e *TemplateEvaluator) Kind() string {
	return KindTemplate
}

// Evaluate renders the template against the scope.
func (e *TemplateEvaluator) Evaluate(ctx context.Context, expression string, scope *Scope) (any, error) {
	segments, err := e.getOrParse(expression)
	if err != nil {
		return nil, err
	}

	data := scope.Data()
	var out strings.Builder
	for _, seg := range segments {
		if seg.ref == "" {
			out.WriteString(seg.text)
			continue
		}
		val, err := lookupPath(data, seg.path, seg.ref)
		if err != nil {
			return nil, err.WithDetails(map[string]any{"expression": expression, "reference": seg.ref})
		}
		out.WriteString(FormatText(val))
	}
	return out.String(), nil
}

func (e *TemplateEvaluator) getOrParse(expression string) ([]segment, error) {
	e.mu.RLock()
	if segs, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return segs, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if segs, ok := e.cache[expression]; ok {
		return segs, nil
	}

	segs, err := parseTemplate(expression)
	if err != nil {
		return nil, compileErr(KindTemplate, expression, err)
	}

	e.cache[expression] = segs
	return segs, nil
}

func parseTemplate(input string) ([]segment, error) {
	var segs []segment
	i := 0
	for i < len(input) {
		idx := strings.Index(input[i:], "{{")
		if idx == -1 {
			segs = append(segs, segment{text: input[i:]})
			break
		}
		text := input[i : i+idx]
		text = strings.TrimSuffix(text, "$")
		if text != "" {
			segs = append(segs, segment{text: text})
		}
		start := i + idx + 2

		end := strings.Index(input[start:], "}}")
		if end == -1 {
			return nil, fmt.Errorf("unclosed {{ at offset %d", i+idx)
		}
		end += start

		ref := strings.TrimSpace(input[start:end])
		if ref == "" {
			return nil, fmt.Errorf("empty reference at offset %d", i+idx)
		}
		if strings.Contains(ref, "{{") {
			return nil, fmt.Errorf("nested reference in %q", ref)
		}
		path := strings.Split(ref, ".")
		for n, p := range path {
			if p == "" {
				return nil, fmt.Errorf("empty segment in %q at position %d", ref, n)
			}
		}
		segs = append(segs, segment{ref: ref, path: path})
		i = end + 2
	}
	return segs, nil
}

// lookupPath resolves a reference path against the scope document.
func lookupPath(data map[string]any, path []string, ref string) (any, *schema.WorkflowError) {
	root, ok := data[path[0]]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
			"unknown namespace %q in {{ %s }}; available: [%s]", path[0], ref, strings.Join(sortedKeys(data), ", "))
	}

	current := root
	for _, seg := range path[1:] {
		switch v := current.(type) {
		case map[string]any:
			val, ok := v[seg]
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
					"field %q not found in {{ %s }}; available: [%s]", seg, ref, strings.Join(sortedKeys(v), ", "))
			}
			current = val
		case []any:
			n, err := strconv.Atoi(seg)
			if err != nil || n < 0 || n >= len(v) {
				return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
					"index %q out of range in {{ %s }} (len %d)", seg, ref, len(v))
			}
			current = v[n]
		default:
			return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
				"cannot traverse into %T at %q in {{ %s }}", current, seg, ref)
		}
	}
	return current, nil
}

// FormatText renders a value the way templates and text outputs print it:
// strings verbatim, nil as empty, whole floats without a fraction, and
// composite values as JSON.
func FormatText(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Evaluator = (*TemplateEvaluator)(nil)
