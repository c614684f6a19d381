package serialization

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// MaxDepth bounds the nesting of variable values. Deeper values, which
// includes any self-referencing structure, are rejected.
const MaxDepth = 64

// Normalize returns a copy of v that a Registry can persist: maps and slices
// are copied, the kinds with a dedicated serializer are kept as is, and any
// other composite value (structs, typed maps) is converted through JSON.
// The copy shares no references with v.
func Normalize(v any) (any, error) {
	return normalize(v, 0)
}

func normalize(v any, depth int) (any, error) {
	if depth > MaxDepth {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"value nested deeper than %d levels (cyclic?)", MaxDepth)
	}
	switch val := v.(type) {
	case nil, string, bool, Sealed, time.Time, time.Duration,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val, nil
	case float32:
		if err := checkFinite(float64(val)); err != nil {
			return nil, err
		}
		return val, nil
	case float64:
		if err := checkFinite(val); err != nil {
			return nil, err
		}
		return val, nil
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp, nil
	case json.Number:
		return fromJSONNumbers(val), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			n, err := normalize(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			n, err := normalize(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"value of type %T is not serializable", v).WithCause(err)
		}
		return DecodeJSON(raw)
	}
}

// checkFinite rejects NaN and infinities, which JSON cannot represent.
func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return schema.NewErrorf(schema.ErrCodeValidation, "non-finite number %v is not serializable", f)
	}
	return nil
}
