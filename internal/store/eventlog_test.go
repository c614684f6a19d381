package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func TestEventLog_Replay(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		el := NewEventLog(s)

		require.NoError(t, el.Record(ctx, "i1", "", schema.EventWorkflowStarted, nil))
		require.NoError(t, el.Record(ctx, "i1", "join", schema.EventActivityExecuting, nil))
		require.NoError(t, el.Record(ctx, "i1", "join", schema.EventActivityExecuted, ExecutedPayload{}))
		require.NoError(t, el.Record(ctx, "i1", "join", schema.EventActivityExecuting, nil))
		require.NoError(t, el.Record(ctx, "i1", "join", schema.EventActivityExecuted,
			ExecutedPayload{Outcomes: []string{"Joined"}}))
		require.NoError(t, el.Record(ctx, "i1", "fail", schema.EventActivityExecuting, nil))
		require.NoError(t, el.Record(ctx, "i1", "fail", schema.EventWorkflowFaulted, FaultedPayload{Error: "boom"}))

		history, err := el.Replay(ctx, "i1")
		require.NoError(t, err)
		require.Len(t, history, 2)

		join := history["join"]
		assert.Equal(t, 2, join.Executions)
		assert.Equal(t, []string{"Joined"}, join.Outcomes)
		assert.NotNil(t, join.LastRunAt)
		assert.False(t, join.Faulted)

		assert.True(t, history["fail"].Faulted)
	})
}

func TestEventLog_ReplayEmpty(t *testing.T) {
	el := NewEventLog(NewMemoryStore(nil))
	history, err := el.Replay(context.Background(), "none")
	require.NoError(t, err)
	assert.Empty(t, history)
}

type gappyEvents struct{ EventStore }

func (gappyEvents) GetEvents(context.Context, string, int64) ([]*Event, error) {
	return []*Event{{Sequence: 1}, {Sequence: 3}}, nil
}

func TestEventLog_ReplayDetectsGap(t *testing.T) {
	_, err := NewEventLog(gappyEvents{}).Replay(context.Background(), "i1")
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeStore))
}
