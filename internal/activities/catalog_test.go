package activities

import (
	"bytes"
	"testing"

	"github.com/rendis/flowgraph/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_RegisterAndInstantiate(t *testing.T) {
	c := NewCatalog()
	require.NoError(t, c.Register("AddTask", func() Activity { return &AddTask{} }))

	act, ok := c.InstantiateActivity("AddTask")
	require.True(t, ok)
	assert.Equal(t, TypeAdd, act.Type())
	assert.True(t, c.Has("AddTask"))
	assert.Equal(t, 1, c.Count())

	other, _ := c.InstantiateActivity("AddTask")
	assert.NotSame(t, act, other, "each instantiation yields a fresh instance")
}

func TestCatalog_UnknownType(t *testing.T) {
	c := NewCatalog()
	act, ok := c.InstantiateActivity("Nope")
	assert.False(t, ok)
	assert.Nil(t, act)
}

func TestCatalog_RegisterErrors(t *testing.T) {
	c := NewCatalog()

	err := c.Register("", func() Activity { return &AddTask{} })
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	err = c.Register("X", nil)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	require.NoError(t, c.Register("X", func() Activity { return &AddTask{} }))
	err = c.Register("X", func() Activity { return &AddTask{} })
	assert.True(t, schema.IsCode(err, schema.ErrCodeConflict))
}

func TestDefaultCatalog_List(t *testing.T) {
	c, err := NewDefaultCatalog(BuiltinOptions{Output: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Equal(t, 10, c.Count())

	infos := c.List()
	require.Len(t, infos, 10)
	assert.Equal(t, TypeAdd, infos[0].Type)

	byType := make(map[string]TypeInfo)
	for _, info := range infos {
		byType[info.Type] = info
	}
	assert.True(t, byType[TypeSignal].Blocking)
	assert.True(t, byType[TypeTimer].Blocking)
	assert.False(t, byType[TypeWriteLine].Blocking)
	assert.Equal(t, []string{"True", "False"}, byType[TypeIfElse].Outcomes)
	assert.Empty(t, byType[TypeFork].Outcomes)
	assert.Equal(t, []string{"200", OutcomeUnhandledHTTPStatus}, byType[TypeHTTPRequest].Outcomes)
}
