package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/rendis/flowgraph/internal/activities"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/serialization"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultMaxSteps bounds the activities executed by one manager call.
const DefaultMaxSteps = 10_000

// Catalog resolves activity type names to runnable activities.
type Catalog interface {
	InstantiateActivity(typeName string) (activities.Activity, bool)
}

// Options configures a WorkflowManager. Zero fields get in-memory defaults.
type Options struct {
	Catalog     Catalog
	Evaluators  *expressions.Resolver
	Definitions store.DefinitionStore
	Instances   store.InstanceStore
	Locker      store.Locker
	IDs         IDGenerator
	Handlers    []ContextHandler
	Validator   validation.Validator
	Clock       func() time.Time
	Logger      *slog.Logger
	MaxSteps    int
	LockTTL     time.Duration
	Output      io.Writer // WriteLineTask output of the default catalog
}

// ExecutionResult summarizes an instance after a manager call.
type ExecutionResult struct {
	CorrelationID       string                     `json:"correlationId"`
	DefinitionID        string                     `json:"definitionId"`
	Status              schema.WorkflowStatus      `json:"status"`
	BlockingActivityIDs []string                   `json:"blockingActivityIds,omitempty"`
	LastResult          any                        `json:"lastResult,omitempty"`
	ExecutionLog        []schema.ExecutionLogEntry `json:"executionLog"`
	Error               *schema.WorkflowError      `json:"error,omitempty"`
}

// DueTimer is a timer bookmark whose due time has passed.
type DueTimer struct {
	InstanceID string    `json:"instanceId"`
	ActivityID string    `json:"activityId"`
	DueAt      time.Time `json:"dueAt"`
}

// WorkflowManager starts and resumes workflow instances. Each call runs the
// instance's execution loop to completion or suspension on the caller's
// goroutine, holding the instance lock for the duration.
type WorkflowManager struct {
	catalog     Catalog
	evaluators  *expressions.Resolver
	definitions store.DefinitionStore
	instances   store.InstanceStore
	locker      store.Locker
	ids         IDGenerator
	handlers    *handlerChain
	validator   validation.Validator
	now         func() time.Time
	logger      *slog.Logger
	maxSteps    int
	lockTTL     time.Duration
}

// NewWorkflowManager creates a manager from opts.
func NewWorkflowManager(opts Options) (*WorkflowManager, error) {
	m := &WorkflowManager{
		catalog:     opts.Catalog,
		evaluators:  opts.Evaluators,
		definitions: opts.Definitions,
		instances:   opts.Instances,
		locker:      opts.Locker,
		ids:         opts.IDs,
		validator:   opts.Validator,
		now:         opts.Clock,
		logger:      opts.Logger,
		maxSteps:    opts.MaxSteps,
		lockTTL:     opts.LockTTL,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.catalog == nil {
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		catalog, err := activities.NewDefaultCatalog(activities.BuiltinOptions{Output: out, Now: m.now})
		if err != nil {
			return nil, err
		}
		m.catalog = catalog
	}
	if m.evaluators == nil {
		resolver, err := expressions.DefaultResolver()
		if err != nil {
			return nil, err
		}
		m.evaluators = resolver
	}
	if m.definitions == nil || m.instances == nil {
		mem := store.NewMemoryStore(nil)
		if m.definitions == nil {
			m.definitions = mem
		}
		if m.instances == nil {
			m.instances = mem
		}
	}
	if m.locker == nil {
		m.locker = store.NewMemoryLocker()
	}
	if m.ids == nil {
		m.ids = UUIDGenerator{}
	}
	if m.validator == nil {
		types, _ := m.catalog.(validation.Lookup)
		v, err := validation.NewWorkflowValidator(types, m.evaluators)
		if err != nil {
			return nil, err
		}
		m.validator = v
	}
	if m.maxSteps <= 0 {
		m.maxSteps = DefaultMaxSteps
	}
	if m.lockTTL <= 0 {
		m.lockTTL = store.DefaultLockTTL
	}
	m.handlers = &handlerChain{handlers: opts.Handlers, logger: m.logger}
	return m, nil
}

// workItem is one queued activity execution.
type workItem struct {
	record  *schema.ActivityRecord
	source  string
	resume  bool
	payload map[string]any
}

// StartWorkflow validates def, creates a fresh instance seeded with input and
// runs it. Caller errors (invalid definition, invalid input, no qualifying
// start activity) persist nothing. A fault returns the result together with
// the error.
func (m *WorkflowManager) StartWorkflow(ctx context.Context, def *schema.WorkflowType, input map[string]any) (*ExecutionResult, error) {
	if err := m.validator.ValidateDefinition(def); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	if len(def.InputSchema) > 0 {
		if err := m.validator.ValidateInput(input, def.InputSchema); err != nil {
			return nil, err
		}
	}
	normalized, err := serialization.Normalize(input)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "start input").WithCause(err)
	}

	now := m.now().UTC()
	inst := &schema.WorkflowInstance{
		DefinitionID:        def.ID,
		CorrelationID:       m.ids.NewID(),
		Status:              schema.WorkflowStatusIdle,
		Variables:           map[string]any{VarInput: normalized},
		BlockingActivityIDs: []string{},
		ExecutionLog:        []schema.ExecutionLogEntry{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	wctx := newExecutionContext(def, inst)
	ctx = logging.WithDefinitionID(logging.WithCorrelationID(ctx, inst.CorrelationID), def.ID)

	starts, err := m.qualifyingStarts(ctx, wctx)
	if err != nil {
		return nil, err
	}

	ctx, release, err := m.hold(ctx, inst.CorrelationID)
	if err != nil {
		return nil, err
	}
	defer release()

	m.handlers.starting(ctx, wctx)
	if err := wctx.transition(schema.WorkflowStatusExecuting); err != nil {
		return nil, err
	}
	m.handlers.started(ctx, wctx)

	queue := make([]workItem, 0, len(starts))
	for _, rec := range starts {
		queue = append(queue, workItem{record: rec})
	}
	return m.run(ctx, wctx, queue)
}

// StartWorkflowByID loads a stored definition and starts it.
func (m *WorkflowManager) StartWorkflowByID(ctx context.Context, definitionID string, input map[string]any) (*ExecutionResult, error) {
	def, err := m.definitions.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	return m.StartWorkflow(ctx, def, input)
}

// qualifyingStarts returns the start activities whose predicate holds.
func (m *WorkflowManager) qualifyingStarts(ctx context.Context, wctx *ExecutionContext) ([]*schema.ActivityRecord, error) {
	var out []*schema.ActivityRecord
	for _, rec := range wctx.definition.StartActivities() {
		if rec.StartWhen == nil {
			out = append(out, rec)
			continue
		}
		v, err := m.evaluators.Evaluate(ctx, *rec.StartWhen, wctx.scope())
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeEvaluationFailed, "start predicate").
				WithActivity(rec.ID).WithCause(err)
		}
		ok, err := cast.ToBoolE(v)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeEvaluationFailed,
				"start predicate returned %T, want bool", v).WithActivity(rec.ID).WithCause(err)
		}
		if ok {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, schema.NewError(schema.ErrCodeDefinitionInvalid, "no start activity qualifies for this input")
	}
	return out, nil
}

// ResumeWorkflow continues a suspended instance at the blocking activity
// activityID with input merged into its variables. Nothing is mutated when
// the instance is unknown (INSTANCE_NOT_FOUND) or not waiting on activityID
// (NOT_SUSPENDED).
func (m *WorkflowManager) ResumeWorkflow(ctx context.Context, instanceID, activityID string, input map[string]any) (*ExecutionResult, error) {
	ctx = logging.WithCorrelationID(ctx, instanceID)

	ctx, release, err := m.hold(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	defer release()

	inst, err := m.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != schema.WorkflowStatusSuspended || !inst.IsBlockedOn(activityID) {
		return nil, schema.NewErrorf(schema.ErrCodeNotSuspended,
			"instance %s is not waiting on activity %q", instanceID, activityID).
			WithDetails(map[string]any{"status": string(inst.Status), "blocking": inst.BlockingActivityIDs})
	}

	def, err := m.definitions.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("load definition %s: %w", inst.DefinitionID, err)
	}
	rec, ok := def.Activity(activityID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeDefinitionInvalid,
			"definition %s no longer has activity %q", def.ID, activityID)
	}
	ctx = logging.WithDefinitionID(ctx, def.ID)

	wctx := newExecutionContext(def, inst)
	if err := wctx.mergeInput(input); err != nil {
		return nil, err
	}
	if err := wctx.transition(schema.WorkflowStatusExecuting); err != nil {
		return nil, err
	}
	inst.Unblock(activityID)
	m.handlers.resumed(ctx, wctx)

	payload := expressions.DeepCopyMap(input)
	if payload == nil {
		payload = map[string]any{}
	}
	return m.run(ctx, wctx, []workItem{{record: rec, resume: true, payload: payload}})
}

// TriggerSignal resumes every suspended instance holding a bookmark for
// signalKey, one instance at a time. Instances that are busy or were resumed
// meanwhile are skipped.
func (m *WorkflowManager) TriggerSignal(ctx context.Context, signalKey string, input map[string]any) ([]*ExecutionResult, error) {
	if signalKey == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "signal key is required")
	}
	waiting, err := m.instances.ListInstances(ctx, store.InstanceFilter{
		Status:    schema.WorkflowStatusSuspended,
		SignalKey: signalKey,
	})
	if err != nil {
		return nil, err
	}

	var results []*ExecutionResult
	for _, inst := range waiting {
		for _, activityID := range inst.BlockingActivityIDs {
			if inst.Bookmarks[activityID].SignalKey != signalKey {
				continue
			}
			res, err := m.ResumeWorkflow(ctx, inst.CorrelationID, activityID, input)
			switch {
			case schema.IsCode(err, schema.ErrCodeNotSuspended), schema.IsCode(err, schema.ErrCodeLocked):
				logging.LogWith(ctx, m.logger).Debug("signal skipped",
					"instance", inst.CorrelationID, "activity", activityID, "reason", err)
				continue
			case res != nil:
				results = append(results, res)
			case err != nil:
				return results, err
			}
		}
	}
	return results, nil
}

// DueTimers lists timer bookmarks due at or before now.
func (m *WorkflowManager) DueTimers(ctx context.Context, now time.Time) ([]DueTimer, error) {
	due, err := m.instances.ListInstances(ctx, store.InstanceFilter{
		Status:    schema.WorkflowStatusSuspended,
		DueBefore: &now,
	})
	if err != nil {
		return nil, err
	}
	var out []DueTimer
	for _, inst := range due {
		for _, activityID := range inst.BlockingActivityIDs {
			b := inst.Bookmarks[activityID]
			if b.DueAt != nil && !b.DueAt.After(now) {
				out = append(out, DueTimer{InstanceID: inst.CorrelationID, ActivityID: activityID, DueAt: *b.DueAt})
			}
		}
	}
	return out, nil
}

// ResumeDueTimers resumes every due timer sequentially.
func (m *WorkflowManager) ResumeDueTimers(ctx context.Context, now time.Time) ([]*ExecutionResult, error) {
	timers, err := m.DueTimers(ctx, now)
	if err != nil {
		return nil, err
	}
	var results []*ExecutionResult
	for _, t := range timers {
		res, err := m.ResumeWorkflow(ctx, t.InstanceID, t.ActivityID, nil)
		if res != nil {
			results = append(results, res)
		}
		if err != nil && res == nil && !schema.IsCode(err, schema.ErrCodeNotSuspended) && !schema.IsCode(err, schema.ErrCodeLocked) {
			return results, err
		}
	}
	return results, nil
}

// GetInstance returns the persisted state of an instance.
func (m *WorkflowManager) GetInstance(ctx context.Context, instanceID string) (*schema.WorkflowInstance, error) {
	return m.load(ctx, instanceID)
}

func (m *WorkflowManager) load(ctx context.Context, instanceID string) (*schema.WorkflowInstance, error) {
	inst, err := m.instances.LoadInstance(ctx, instanceID)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, schema.NewErrorf(schema.ErrCodeInstanceNotFound, "instance %q not found", instanceID).WithCause(err)
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// hold locks instanceID and renews the lease every third of the TTL until
// release runs. A failed renewal cancels the returned context with the
// renewal error as cause, which faults the run at its next step.
func (m *WorkflowManager) hold(ctx context.Context, instanceID string) (context.Context, func(), error) {
	lease, err := m.locker.Acquire(ctx, instanceID, m.lockTTL)
	if err != nil {
		return ctx, nil, err
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(max(m.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := lease.Extend(runCtx); err != nil {
					logging.LogWith(runCtx, m.logger).Error("instance lock lost", "error", err)
					cancel(err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return runCtx, func() {
		once.Do(func() {
			close(done)
			cancel(nil)
			lease.Release()
		})
	}, nil
}

// run drains the queue. Halted blocking activities join the blocking set
// while the remaining branches keep running; the instance suspends once the
// queue is empty and blocks remain, otherwise it finishes.
func (m *WorkflowManager) run(ctx context.Context, wctx *ExecutionContext, queue []workItem) (*ExecutionResult, error) {
	table := NewTransitionTable(wctx.definition)
	steps := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if ctx.Err() != nil {
			return m.fault(ctx, wctx, item.record.ID,
				schema.NewError(schema.ErrCodeExecutionFailed, "execution cancelled").WithCause(context.Cause(ctx)))
		}
		steps++
		if steps > m.maxSteps {
			return m.fault(ctx, wctx, item.record.ID,
				schema.NewErrorf(schema.ErrCodeExecutionFailed, "exceeded %d steps in one run", m.maxSteps))
		}

		next, err := m.step(ctx, wctx, table, item)
		if err != nil {
			return m.fault(ctx, wctx, item.record.ID, err)
		}
		queue = append(queue, next...)
	}

	if len(wctx.instance.BlockingActivityIDs) > 0 {
		if err := wctx.transition(schema.WorkflowStatusSuspended); err != nil {
			return m.fault(ctx, wctx, "", err)
		}
		m.handlers.suspended(ctx, wctx)
		if err := m.persist(ctx, wctx); err != nil {
			return m.fault(ctx, wctx, "", schema.NewError(schema.ErrCodeStore, "persist suspended instance").WithCause(err))
		}
		return m.result(wctx), nil
	}

	if err := wctx.transition(schema.WorkflowStatusFinished); err != nil {
		return m.fault(ctx, wctx, "", err)
	}
	m.handlers.finished(ctx, wctx)
	if err := m.persist(ctx, wctx); err != nil {
		return m.fault(ctx, wctx, "", schema.NewError(schema.ErrCodeStore, "persist finished instance").WithCause(err))
	}
	return m.result(wctx), nil
}

// step executes one work item and returns the work it enqueues.
func (m *WorkflowManager) step(ctx context.Context, wctx *ExecutionContext, table *TransitionTable, item workItem) ([]workItem, error) {
	rec := item.record
	ctx = logging.WithActivityID(ctx, rec.ID)
	logger := logging.LogWith(ctx, m.logger)

	m.handlers.executing(ctx, wctx, rec)

	var resolutionErr string
	activity, ok := m.catalog.InstantiateActivity(rec.Type)
	if !ok {
		err := schema.NewErrorf(schema.ErrCodeResolutionFailed, "activity type %q is not registered", rec.Type).
			WithActivity(rec.ID)
		logger.Warn("activity resolution failed", "type", rec.Type, "error", err)
		resolutionErr = err.Error()
		activity = activities.NewMissingActivity(rec.Type)
	}

	input := &activities.Input{
		ActivityID: rec.ID,
		Source:     item.source,
		Incoming:   table.Incoming(rec.ID),
	}

	var result activities.Result
	props, err := m.evaluators.Materialize(ctx, rec.Properties, wctx.scope())
	if err != nil {
		router, ok := activity.(activities.EvaluationErrorRouter)
		if !ok || router.EvaluationErrorOutcome() == "" {
			return nil, withActivity(err, rec.ID)
		}
		logger.Warn("property evaluation failed, routing to outcome",
			"outcome", router.EvaluationErrorOutcome(), "error", err)
		if err := wctx.SetLastResult(err.Error()); err != nil {
			return nil, withActivity(err, rec.ID)
		}
		result = activities.Outcomes(router.EvaluationErrorOutcome())
	} else {
		input.Properties = props
		result, err = m.invoke(ctx, activity, input, wctx, item)
		if err != nil {
			return nil, err
		}
	}

	now := m.now().UTC()
	if result.Halt {
		blocking, ok := activity.(activities.Blocking)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeExecutionFailed,
				"activity type %q halted but is not a blocking activity", rec.Type).WithActivity(rec.ID)
		}
		var due *time.Time
		if result.ResumeAt != nil {
			t := result.ResumeAt.UTC()
			due = &t
		}
		wctx.instance.Block(rec.ID, schema.Bookmark{SignalKey: blocking.SignalKey(input), DueAt: due})
		wctx.appendLog(schema.ExecutionLogEntry{ActivityID: rec.ID, Timestamp: now})
		m.handlers.executed(ctx, wctx, rec, nil)
		return nil, nil
	}

	declared := activity.Outcomes(input)
	for _, outcome := range result.Outcomes {
		if !slices.Contains(declared, outcome) {
			logger.Warn("activity fired an undeclared outcome", "type", rec.Type, "outcome", outcome)
		}
	}

	if len(result.Outcomes) == 0 {
		wctx.appendLog(schema.ExecutionLogEntry{ActivityID: rec.ID, Timestamp: now, Error: resolutionErr})
	}
	for _, outcome := range result.Outcomes {
		wctx.appendLog(schema.ExecutionLogEntry{ActivityID: rec.ID, Outcome: outcome, Timestamp: now, Error: resolutionErr})
	}
	m.handlers.executed(ctx, wctx, rec, result.Outcomes)

	var next []workItem
	for _, outcome := range result.Outcomes {
		for _, destID := range table.Destinations(rec.ID, outcome) {
			dest, ok := wctx.definition.Activity(destID)
			if !ok {
				return nil, schema.NewErrorf(schema.ErrCodeDefinitionInvalid,
					"transition %s/%s targets unknown activity %q", rec.ID, outcome, destID).WithActivity(rec.ID)
			}
			next = append(next, workItem{record: dest, source: rec.ID})
		}
	}
	return next, nil
}

// invoke runs Execute, or Resume for a resumed blocking activity, and wraps
// activity errors as EXECUTION_FAILED.
func (m *WorkflowManager) invoke(ctx context.Context, activity activities.Activity, input *activities.Input, wctx *ExecutionContext, item workItem) (activities.Result, error) {
	var (
		result activities.Result
		err    error
	)
	if item.resume {
		blocking, ok := activity.(activities.Blocking)
		if !ok {
			return result, schema.NewErrorf(schema.ErrCodeExecutionFailed,
				"activity type %q cannot be resumed", item.record.Type).WithActivity(item.record.ID)
		}
		result, err = blocking.Resume(ctx, input, wctx, item.payload)
	} else {
		result, err = activity.Execute(ctx, input, wctx)
	}
	if err != nil {
		return result, schema.NewErrorf(schema.ErrCodeExecutionFailed,
			"activity %s (%s) failed", item.record.ID, item.record.Type).
			WithActivity(item.record.ID).WithCause(err)
	}
	return result, nil
}

// fault marks the instance Faulted, notifies handlers, persists it and
// returns the result together with the error.
func (m *WorkflowManager) fault(ctx context.Context, wctx *ExecutionContext, activityID string, err error) (*ExecutionResult, error) {
	werr := asWorkflowError(err, activityID)

	wctx.instance.FaultedActivityID = werr.ActivityID
	wctx.instance.FaultMessage = werr.Error()
	wctx.appendLog(schema.ExecutionLogEntry{
		ActivityID: werr.ActivityID,
		Timestamp:  m.now().UTC(),
		Error:      werr.Error(),
	})
	if terr := wctx.transition(schema.WorkflowStatusFaulted); terr != nil {
		wctx.instance.Status = schema.WorkflowStatusFaulted
	}
	m.handlers.faulted(ctx, wctx, werr)

	if perr := m.persist(ctx, wctx); perr != nil {
		logging.LogWith(ctx, m.logger).Error("persist faulted instance", "error", perr)
	}
	res := m.result(wctx)
	res.Error = werr
	return res, werr
}

// persist saves the instance, or deletes it when it finished and the
// definition asks for it. Persistence ignores caller cancellation.
func (m *WorkflowManager) persist(ctx context.Context, wctx *ExecutionContext) error {
	ctx = context.WithoutCancel(ctx)
	inst := wctx.instance
	if inst.Status == schema.WorkflowStatusFinished && wctx.definition.DeleteFinished {
		err := m.instances.DeleteInstance(ctx, inst.CorrelationID)
		if err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
			return fmt.Errorf("delete finished instance: %w", err)
		}
		return nil
	}
	if err := m.instances.SaveInstance(ctx, inst); err != nil {
		return fmt.Errorf("save instance: %w", err)
	}
	return nil
}

func (m *WorkflowManager) result(wctx *ExecutionContext) *ExecutionResult {
	last, _ := wctx.GetLastResult()
	return &ExecutionResult{
		CorrelationID:       wctx.CorrelationID(),
		DefinitionID:        wctx.DefinitionID(),
		Status:              wctx.Status(),
		BlockingActivityIDs: wctx.BlockingActivityIDs(),
		LastResult:          last,
		ExecutionLog:        append([]schema.ExecutionLogEntry(nil), wctx.instance.ExecutionLog...),
	}
}

func withActivity(err error, activityID string) error {
	var werr *schema.WorkflowError
	if errors.As(err, &werr) && werr.ActivityID == "" {
		werr.ActivityID = activityID
	}
	return err
}

func asWorkflowError(err error, activityID string) *schema.WorkflowError {
	var werr *schema.WorkflowError
	if !errors.As(err, &werr) {
		werr = schema.NewError(schema.ErrCodeExecutionFailed, "execution failed").WithCause(err)
	}
	if werr.ActivityID == "" {
		werr.ActivityID = activityID
	}
	return werr
}
