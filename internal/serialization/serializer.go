package serialization

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// SerializedValue is the persisted form of one variable.
type SerializedValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// ValueSerializer converts values of one kind to and from their persisted form.
type ValueSerializer interface {
	Kind() string
	Accepts(v any) bool
	Serialize(v any) (json.RawMessage, error)
	Deserialize(raw json.RawMessage) (any, error)
}

// Registry picks a serializer per value: on save the first registered
// serializer that accepts the value, on load the one named by the stored
// kind. The JSON serializer is always the final fallback.
type Registry struct {
	mu          sync.RWMutex
	serializers []ValueSerializer
	byKind      map[string]ValueSerializer
	fallback    ValueSerializer
}

// NewRegistry creates a registry with the given serializers in priority order.
func NewRegistry(serializers ...ValueSerializer) (*Registry, error) {
	r := &Registry{
		byKind:   make(map[string]ValueSerializer),
		fallback: JSONSerializer{},
	}
	r.byKind[KindJSON] = r.fallback
	for _, s := range serializers {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry registers the time, duration and bytes serializers, plus
// the sealed serializer when a key is given.
func DefaultRegistry(sealedKey []byte) (*Registry, error) {
	list := []ValueSerializer{TimeSerializer{}, DurationSerializer{}, BytesSerializer{}}
	if len(sealedKey) > 0 {
		sealed, err := NewSealedSerializer(sealedKey)
		if err != nil {
			return nil, err
		}
		list = append([]ValueSerializer{sealed}, list...)
	}
	return NewRegistry(list...)
}

// Register appends a serializer. Returns a CONFLICT error on duplicate kind.
func (r *Registry) Register(s ValueSerializer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKind[s.Kind()]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "serializer %q already registered", s.Kind())
	}
	r.byKind[s.Kind()] = s
	r.serializers = append(r.serializers, s)
	return nil
}

// Serialize converts v with the first accepting serializer.
func (r *Registry) Serialize(v any) (SerializedValue, error) {
	r.mu.RLock()
	s := r.fallback
	for _, candidate := range r.serializers {
		if candidate.Accepts(v) {
			s = candidate
			break
		}
	}
	r.mu.RUnlock()

	raw, err := s.Serialize(v)
	if err != nil {
		return SerializedValue{}, schema.NewErrorf(schema.ErrCodeSerialization,
			"serialize %T as %s", v, s.Kind()).WithCause(err)
	}
	return SerializedValue{Kind: s.Kind(), Value: raw}, nil
}

// Deserialize restores a value using the serializer named by sv.Kind.
func (r *Registry) Deserialize(sv SerializedValue) (any, error) {
	kind := sv.Kind
	if kind == "" {
		kind = KindJSON
	}
	r.mu.RLock()
	s, ok := r.byKind[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeSerialization, "no serializer for kind %q", kind)
	}
	v, err := s.Deserialize(sv.Value)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSerialization, "deserialize %s value", kind).WithCause(err)
	}
	return v, nil
}

// SerializeMap serializes every entry of vars.
func (r *Registry) SerializeMap(vars map[string]any) (map[string]SerializedValue, error) {
	out := make(map[string]SerializedValue, len(vars))
	for name, v := range vars {
		sv, err := r.Serialize(v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out[name] = sv
	}
	return out, nil
}

// DeserializeMap restores every entry of stored.
func (r *Registry) DeserializeMap(stored map[string]SerializedValue) (map[string]any, error) {
	out := make(map[string]any, len(stored))
	for name, sv := range stored {
		v, err := r.Deserialize(sv)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
