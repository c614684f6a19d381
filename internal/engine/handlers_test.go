package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

type recordingHandler struct {
	calls []string
}

func (r *recordingHandler) OnWorkflowStarting(_ context.Context, wctx *ExecutionContext) {
	r.calls = append(r.calls, "starting:"+string(wctx.Status()))
}

func (r *recordingHandler) OnWorkflowStarted(_ context.Context, wctx *ExecutionContext) {
	r.calls = append(r.calls, "started:"+string(wctx.Status()))
}

func (r *recordingHandler) OnActivityExecuting(_ context.Context, _ *ExecutionContext, rec *schema.ActivityRecord) {
	r.calls = append(r.calls, "executing:"+rec.ID)
}

func (r *recordingHandler) OnActivityExecuted(_ context.Context, _ *ExecutionContext, rec *schema.ActivityRecord, _ []string) {
	r.calls = append(r.calls, "executed:"+rec.ID)
}

func (r *recordingHandler) OnWorkflowFaulted(_ context.Context, _ *ExecutionContext, _ error) {
	r.calls = append(r.calls, "faulted")
}

func (r *recordingHandler) OnWorkflowFinished(_ context.Context, wctx *ExecutionContext) {
	r.calls = append(r.calls, "finished:"+string(wctx.Status()))
}

func (r *recordingHandler) OnWorkflowSuspended(context.Context, *ExecutionContext) {
	r.calls = append(r.calls, "suspended")
}

func (r *recordingHandler) OnWorkflowResumed(context.Context, *ExecutionContext) {
	r.calls = append(r.calls, "resumed")
}

type panickingHandler struct{ NopHandler }

func (panickingHandler) OnWorkflowStarted(context.Context, *ExecutionContext) {
	panic("handler bug")
}

func TestHandlers_CallOrder(t *testing.T) {
	rec := &recordingHandler{}
	h := newHarness(t, func(o *Options) {
		o.Handlers = []ContextHandler{panickingHandler{}, rec}
	})

	res, err := h.mgr.StartWorkflow(context.Background(), sumWorkflow(), map[string]any{"A": 1, "B": 2})
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusFinished, res.Status)
	assert.Equal(t, []string{
		"starting:Idle",
		"started:Executing",
		"executing:add",
		"executed:add",
		"executing:print",
		"executed:print",
		"finished:Finished",
	}, rec.calls)
}

func TestHandlers_SuspendResumeAndFault(t *testing.T) {
	rec := &recordingHandler{}
	h := newHarness(t, func(o *Options) { o.Handlers = []ContextHandler{rec} })
	ctx := context.Background()
	require.NoError(t, h.store.SaveDefinition(ctx, approvalWorkflow()))

	res, err := h.mgr.StartWorkflow(ctx, approvalWorkflow(), nil)
	require.NoError(t, err)
	assert.Equal(t, "suspended", rec.calls[len(rec.calls)-1])

	rec.calls = nil
	_, err = h.mgr.ResumeWorkflow(ctx, res.CorrelationID, "wait", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"resumed",
		"executing:wait",
		"executed:wait",
		"executing:done",
		"executed:done",
		"finished:Finished",
	}, rec.calls)

	rec.calls = nil
	def := &schema.WorkflowType{
		ID: "fails",
		Activities: []schema.ActivityRecord{
			start(act("f", "FaultTask", map[string]schema.Property{"Message": schema.Literal("x")})),
		},
	}
	_, err = h.mgr.StartWorkflow(ctx, def, nil)
	require.Error(t, err)
	assert.Equal(t, "faulted", rec.calls[len(rec.calls)-1])
	assert.NotContains(t, rec.calls, "executed:f")
}

func TestEventLogHandler_RecordsHistory(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	events := store.NewEventLog(mem)
	h := newHarness(t, func(o *Options) {
		o.Instances = mem
		o.Handlers = []ContextHandler{EventLogHandler{Log: events}}
	})
	ctx := context.Background()

	res, err := h.mgr.StartWorkflow(ctx, sumWorkflow(), map[string]any{"A": 2, "B": 2})
	require.NoError(t, err)

	stored, err := mem.GetEvents(ctx, res.CorrelationID, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range stored {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		schema.EventWorkflowStarting,
		schema.EventWorkflowStarted,
		schema.EventActivityExecuting,
		schema.EventActivityExecuted,
		schema.EventActivityExecuting,
		schema.EventActivityExecuted,
		schema.EventWorkflowFinished,
	}, types)

	history, err := events.Replay(ctx, res.CorrelationID)
	require.NoError(t, err)
	require.Contains(t, history, "add")
	assert.Equal(t, 1, history["add"].Executions)
	assert.Equal(t, []string{schema.OutcomeDone}, history["add"].Outcomes)
}
