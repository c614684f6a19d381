package definitions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

const sumYAML = `
id: sum
name: Add two inputs
activities:
  - id: add
    type: AddTask
    isStart: true
    properties:
      A: {syntax: js, expression: 'input("A")'}
      B: {syntax: js, expression: 'input("B")'}
  - id: print
    type: WriteLineTask
    properties:
      Text: {syntax: js, expression: 'lastResult().toString()'}
transitions:
  - {sourceActivityId: add, sourceOutcome: Done, destinationActivityId: print}
inputSchema:
  type: object
  required: [A, B]
`

func TestParse_YAML(t *testing.T) {
	def, err := Parse([]byte(sumYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "sum", def.ID)
	require.Len(t, def.Activities, 2)
	assert.True(t, def.Activities[0].IsStart)
	assert.Equal(t, schema.Expr("js", `input("A")`), def.Activities[0].Properties["A"])
	assert.Equal(t, []schema.Transition{{SourceActivityID: "add", SourceOutcome: "Done", DestinationActivityID: "print"}}, def.Transitions)
	assert.JSONEq(t, `{"type":"object","required":["A","B"]}`, string(def.InputSchema))
}

func TestParse_JSONAndLiterals(t *testing.T) {
	doc := `{"id":"w","activities":[{"id":"a","type":"WriteLineTask","isStart":true,
		"properties":{"Text":{"value":"hi"}}}]}`
	def, err := Parse([]byte(doc), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, schema.Literal("hi"), def.Activities[0].Properties["Text"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("id: [unterminated"), FormatYAML)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = Parse([]byte(""), FormatYAML)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = Parse([]byte("id: x\nactivites: []\n"), FormatYAML)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation), "unknown field should fail")
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatOf("a/b.JSON"))
	assert.Equal(t, FormatYAML, FormatOf("a/b.yml"))
	assert.Equal(t, FormatYAML, FormatOf("noext"))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-sum.yaml"), []byte(sumYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-hello.json"),
		[]byte(`{"id":"hello","activities":[{"id":"a","type":"WriteLineTask","isStart":true}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "hello", defs[0].ID)
	assert.Equal(t, "sum", defs[1].ID)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-dup.yml"), []byte(sumYAML), 0o644))
	_, err = LoadDir(dir)
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict), "got %v", err)
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(nil)
	v, err := validation.NewWorkflowValidator(nil, nil)
	require.NoError(t, err)

	def, err := Parse([]byte(sumYAML), FormatYAML)
	require.NoError(t, err)
	require.NoError(t, Publish(ctx, mem, v, def))

	got, err := mem.GetDefinition(ctx, "sum")
	require.NoError(t, err)
	assert.Equal(t, def.Activities, got.Activities)

	bad := &schema.WorkflowType{ID: "bad", Activities: []schema.ActivityRecord{{ID: "a", Type: "WriteLineTask"}}}
	err = Publish(ctx, mem, v, bad)
	assert.True(t, schema.IsCode(err, schema.ErrCodeDefinitionInvalid), "got %v", err)
	_, err = mem.GetDefinition(ctx, "bad")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
