package serialization

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func testKey() []byte {
	return bytes.Repeat([]byte{7}, 32)
}

func TestRegistry_RoundTripKinds(t *testing.T) {
	reg, err := DefaultRegistry(testKey())
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)
	vars := map[string]any{
		"count":   int64(3),
		"ratio":   1.5,
		"name":    "ada",
		"when":    at,
		"timeout": 90 * time.Second,
		"blob":    []byte{1, 2, 3},
		"secret":  Sealed("hunter2"),
		"nested":  map[string]any{"list": []any{int64(1), "x"}},
		"nothing": nil,
	}

	stored, err := reg.SerializeMap(vars)
	require.NoError(t, err)
	assert.Equal(t, KindTime, stored["when"].Kind)
	assert.Equal(t, KindDuration, stored["timeout"].Kind)
	assert.Equal(t, KindBytes, stored["blob"].Kind)
	assert.Equal(t, KindSealed, stored["secret"].Kind)
	assert.Equal(t, KindJSON, stored["nested"].Kind)
	assert.NotContains(t, string(stored["secret"].Value), "hunter2")

	restored, err := reg.DeserializeMap(stored)
	require.NoError(t, err)
	assert.Equal(t, vars, restored)
}

func TestRegistry_DuplicateKind(t *testing.T) {
	_, err := NewRegistry(TimeSerializer{}, TimeSerializer{})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	_, err = reg.Deserialize(SerializedValue{Kind: "custom", Value: []byte(`1`)})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeSerialization))
}

func TestRegistry_EmptyKindIsJSON(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	v, err := reg.Deserialize(SerializedValue{Value: []byte(`{"a":2.5,"b":4}`)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 2.5, "b": int64(4)}, v)
}

func TestRegistry_SealedNeedsKey(t *testing.T) {
	plain, err := DefaultRegistry(nil)
	require.NoError(t, err)

	// Without a sealed serializer the value falls back to plain JSON.
	sv, err := plain.Serialize(Sealed("x"))
	require.NoError(t, err)
	assert.Equal(t, KindJSON, sv.Kind)

	_, err = plain.Deserialize(SerializedValue{Kind: KindSealed, Value: []byte(`"abc"`)})
	assert.True(t, schema.IsCode(err, schema.ErrCodeSerialization))
}

func TestSealed_WrongKeyFails(t *testing.T) {
	a, err := NewSealedSerializer(testKey())
	require.NoError(t, err)
	b, err := NewSealedSerializer(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	raw, err := a.Serialize(Sealed("top"))
	require.NoError(t, err)
	_, err = b.Deserialize(raw)
	assert.Error(t, err)
}

func TestSealed_KeyLength(t *testing.T) {
	_, err := NewSealedSerializer([]byte("short"))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDeriveKey(t *testing.T) {
	k1, err := DeriveKey("pass", []byte("salt"), 1000)
	require.NoError(t, err)
	k2, err := DeriveKey("pass", []byte("salt"), 1000)
	require.NoError(t, err)
	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)

	_, err = DeriveKey("", []byte("salt"), 0)
	assert.Error(t, err)
	_, err = DeriveKey("pass", nil, 0)
	assert.Error(t, err)
}
