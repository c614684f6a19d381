package streaming

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/pkg/schema"
)

func collect(t *testing.T, ch <-chan StreamEvent, n int) []StreamEvent {
	t.Helper()
	var got []StreamEvent
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events", len(got))
			}
			got = append(got, e)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func TestWatermillHub_PublishSubscribe(t *testing.T) {
	hub := NewWatermillHub(nil)
	defer hub.Close()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowStarted}))

	got := collect(t, ch, 1)
	assert.Equal(t, "wf-1", got[0].InstanceID)
	assert.Equal(t, schema.EventWorkflowStarted, got[0].EventType)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestWatermillHub_Filters(t *testing.T) {
	hub := NewWatermillHub(nil)
	defer hub.Close()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		InstanceID: "wf-1",
		EventTypes: []string{schema.EventWorkflowFinished},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{InstanceID: "wf-2", EventType: schema.EventWorkflowFinished}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowFinished}))

	got := collect(t, ch, 1)
	assert.Equal(t, "wf-1", got[0].InstanceID)
	assert.Equal(t, schema.EventWorkflowFinished, got[0].EventType)

	select {
	case e := <-ch:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatermillHub_CancelClosesChannel(t *testing.T) {
	hub := NewWatermillHub(nil)
	defer hub.Close()

	ch, cancel, err := hub.Subscribe(context.Background(), EventFilter{})
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestWatermillHub_CancelledContext(t *testing.T) {
	hub := NewWatermillHub(nil)
	defer hub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, hub.Publish(ctx, StreamEvent{}))
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.Error(t, err)
}

func TestHandler_StreamsWorkflowLifecycle(t *testing.T) {
	hub := NewWatermillHub(nil)
	defer hub.Close()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	var out bytes.Buffer
	catalog, err := activities.NewDefaultCatalog(activities.BuiltinOptions{Output: &out})
	require.NoError(t, err)
	mgr, err := engine.NewWorkflowManager(engine.Options{
		Catalog:  catalog,
		Handlers: []engine.ContextHandler{&Handler{Hub: hub}},
	})
	require.NoError(t, err)

	def := &schema.WorkflowType{
		ID: "hello",
		Activities: []schema.ActivityRecord{
			{ID: "say", Type: activities.TypeWriteLine, IsStart: true, Properties: map[string]schema.Property{
				"Text": schema.Literal("hello"),
			}},
		},
	}
	res, err := mgr.StartWorkflow(ctx, def, nil)
	require.NoError(t, err)

	got := collect(t, ch, 5)
	var types []string
	for _, e := range got {
		assert.Equal(t, res.CorrelationID, e.InstanceID)
		assert.Equal(t, "hello", e.DefinitionID)
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{
		schema.EventWorkflowStarting,
		schema.EventWorkflowStarted,
		schema.EventActivityExecuting,
		schema.EventActivityExecuted,
		schema.EventWorkflowFinished,
	}, types)
}
