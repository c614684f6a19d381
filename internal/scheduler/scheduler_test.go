package scheduler

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/pkg/schema"
)

type fakeRunner struct {
	mu      sync.Mutex
	due     []engine.DueTimer
	resumed []engine.DueTimer
	errFor  map[string]error
}

func (f *fakeRunner) DueTimers(context.Context, time.Time) ([]engine.DueTimer, error) {
	return f.due, nil
}

func (f *fakeRunner) ResumeWorkflow(_ context.Context, instanceID, activityID string, _ map[string]any) (*engine.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = append(f.resumed, engine.DueTimer{InstanceID: instanceID, ActivityID: activityID})
	if err := f.errFor[activityID]; err != nil {
		return nil, err
	}
	return &engine.ExecutionResult{CorrelationID: instanceID, Status: schema.WorkflowStatusFinished}, nil
}

func TestNewScheduler_RejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&fakeRunner{}, Options{Spec: "every so often"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation), "got %v", err)

	s, err := NewScheduler(&fakeRunner{}, Options{})
	require.NoError(t, err)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(10*time.Second), s.schedule.Next(from))
}

func TestTick_GroupsTimersPerInstance(t *testing.T) {
	runner := &fakeRunner{
		due: []engine.DueTimer{
			{InstanceID: "i1", ActivityID: "a"},
			{InstanceID: "i2", ActivityID: "b"},
			{InstanceID: "i1", ActivityID: "c"},
		},
		errFor: map[string]error{
			"b": schema.NewError(schema.ErrCodeNotSuspended, "already resumed"),
		},
	}
	s, err := NewScheduler(runner, Options{PoolSize: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Tick(context.Background()))
	assert.ElementsMatch(t, runner.due, runner.resumed)

	var i1 []string
	for _, r := range runner.resumed {
		if r.InstanceID == "i1" {
			i1 = append(i1, r.ActivityID)
		}
	}
	assert.Equal(t, []string{"a", "c"}, i1)
	assert.Equal(t, int64(2), s.Metrics().Completed)
}

func TestTick_FailedResumeCounts(t *testing.T) {
	runner := &fakeRunner{
		due:    []engine.DueTimer{{InstanceID: "i1", ActivityID: "a"}},
		errFor: map[string]error{"a": schema.NewError(schema.ErrCodeExecutionFailed, "boom")},
	}
	s, err := NewScheduler(runner, Options{})
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Equal(t, int64(1), s.Metrics().Failed)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(&fakeRunner{}, Options{Spec: "@every 1h"})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestScheduler_ResumesDueTimerWorkflows(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	var out bytes.Buffer
	catalog, err := activities.NewDefaultCatalog(activities.BuiltinOptions{Output: &out, Now: clock})
	require.NoError(t, err)
	mgr, err := engine.NewWorkflowManager(engine.Options{Catalog: catalog, Clock: clock})
	require.NoError(t, err)

	def := &schema.WorkflowType{
		ID: "nap",
		Activities: []schema.ActivityRecord{
			{ID: "sleep", Type: activities.TypeTimer, IsStart: true, Properties: map[string]schema.Property{
				"Duration": schema.Literal("5m"),
			}},
			{ID: "wake", Type: activities.TypeWriteLine, Properties: map[string]schema.Property{
				"Text": schema.Literal("awake"),
			}},
		},
		Transitions: []schema.Transition{
			{SourceActivityID: "sleep", SourceOutcome: schema.OutcomeDone, DestinationActivityID: "wake"},
		},
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		res, err := mgr.StartWorkflow(context.Background(), def, nil)
		require.NoError(t, err)
		require.Equal(t, schema.WorkflowStatusSuspended, res.Status)
		ids = append(ids, res.CorrelationID)
	}

	s, err := NewScheduler(mgr, Options{PoolSize: 2, Now: clock})
	require.NoError(t, err)

	assert.Equal(t, 0, s.Tick(context.Background()))
	assert.Empty(t, out.String())

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 3, s.Tick(context.Background()))
	assert.Equal(t, "awake\nawake\nawake\n", out.String())

	for _, id := range ids {
		inst, err := mgr.GetInstance(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, schema.WorkflowStatusFinished, inst.Status)
	}
}

var _ TimerRunner = (*engine.WorkflowManager)(nil)
