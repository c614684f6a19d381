package expressions

import (
	"context"
	"testing"

	"github.com/rendis/flowgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultResolver_Kinds(t *testing.T) {
	r, err := DefaultResolver()
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"cel", "expr", "javascript", "jq", "js", "jsonpath", "liquid", "template"},
		r.Kinds())

	js, ok := r.Get("javascript")
	require.True(t, ok)
	assert.Equal(t, KindJavaScript, js.Kind())
}

func TestResolver_RegisterConflict(t *testing.T) {
	r := NewResolver()
	require.NoError(t, r.Register(NewExprEvaluator()))

	err := r.Register(NewExprEvaluator())
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))

	err = r.Register(NewJQEvaluator(), "expr")
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
	_, ok := r.Get(KindJQ)
	assert.False(t, ok, "a rejected registration must not be partially applied")
}

func TestResolver_SameResultAcrossSyntaxes(t *testing.T) {
	r, err := DefaultResolver()
	require.NoError(t, err)
	s := testScope()

	for _, p := range []schema.Property{
		schema.Expr("js", `input("A") + input("B")`),
		schema.Expr("expr", `input("A") + input("B")`),
		schema.Expr("cel", `inputs.A + inputs.B`),
		schema.Expr("jq", `.inputs.A + .inputs.B`),
	} {
		out, err := r.Evaluate(context.Background(), p, s)
		require.NoError(t, err, p.Syntax)
		assert.EqualValues(t, 32, out, p.Syntax)
	}
}

func TestResolver_EvaluationIsIdempotent(t *testing.T) {
	r, err := DefaultResolver()
	require.NoError(t, err)
	s := testScope()

	for _, p := range []schema.Property{
		schema.Expr("js", `[input("A"), lastResult(), variable("tags")]`),
		schema.Expr("template", `{{ inputs.name }}-{{ lastResult }}`),
		schema.Expr("cel", `variables.count * inputs.A`),
		schema.Expr("jsonpath", `$.variables.tags`),
	} {
		first, err := r.Evaluate(context.Background(), p, s)
		require.NoError(t, err)
		second, err := r.Evaluate(context.Background(), p, s)
		require.NoError(t, err)
		assert.Equal(t, first, second, p.Syntax)
	}
}

func TestResolver_LiteralIsCopied(t *testing.T) {
	r := NewResolver()
	lit := map[string]any{"k": []any{1, 2}}

	out, err := r.Evaluate(context.Background(), schema.Literal(lit), nil)
	require.NoError(t, err)
	out.(map[string]any)["k"] = "changed"
	assert.Equal(t, []any{1, 2}, lit["k"])
}

func TestResolver_UnknownSyntax(t *testing.T) {
	r := NewResolver()
	_, err := r.Evaluate(context.Background(), schema.Expr("lua", "1"), nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeEvaluationFailed))
}

func TestResolver_Materialize(t *testing.T) {
	r, err := DefaultResolver()
	require.NoError(t, err)

	out, err := r.Materialize(context.Background(), map[string]schema.Property{
		"A":     schema.Expr("js", `input("A")`),
		"Text":  schema.Expr("template", `n={{ inputs.B }}`),
		"Fixed": schema.Literal("x"),
	}, testScope())
	require.NoError(t, err)
	assert.EqualValues(t, 10, out["A"])
	assert.Equal(t, "n=22", out["Text"])
	assert.Equal(t, "x", out["Fixed"])

	_, err = r.Materialize(context.Background(), map[string]schema.Property{
		"Bad": schema.Expr("js", `nope(`),
	}, testScope())
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeEvaluationFailed))
	assert.Contains(t, err.Error(), `property "Bad"`)
}
