package serialization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestNormalize_CopiesContainers(t *testing.T) {
	src := map[string]any{"list": []any{int64(1), map[string]any{"k": "v"}}}

	out, err := Normalize(src)
	require.NoError(t, err)

	copied := out.(map[string]any)
	copied["list"].([]any)[1].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", src["list"].([]any)[1].(map[string]any)["k"])
}

func TestNormalize_StructsBecomeMaps(t *testing.T) {
	type point struct {
		X int     `json:"x"`
		Y float64 `json:"y"`
	}

	out, err := Normalize(point{X: 1, Y: 2.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(1), "y": 2.5}, out)

	out, err = Normalize(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, out)
}

func TestNormalize_KeepsKnownKinds(t *testing.T) {
	out, err := Normalize(Sealed("s"))
	require.NoError(t, err)
	assert.Equal(t, Sealed("s"), out)

	out, err = Normalize(42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestNormalize_RejectsCycles(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	_, err := Normalize(cyclic)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestNormalize_RejectsUnserializable(t *testing.T) {
	_, err := Normalize(func() {})
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestNormalize_RejectsNonFiniteFloats(t *testing.T) {
	for name, v := range map[string]any{
		"nan":            math.NaN(),
		"+inf":           math.Inf(1),
		"-inf":           float32(math.Inf(-1)),
		"nested in map":  map[string]any{"ratio": math.NaN()},
		"nested in list": []any{1.5, math.Inf(1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(v)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
		})
	}

	out, err := Normalize(map[string]any{"ratio": 0.25})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ratio": 0.25}, out)
}
