package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// ContextHandler observes the execution of workflow instances. Handlers are
// called synchronously in registration order and cannot alter the run; a
// panicking handler is recovered and logged.
type ContextHandler interface {
	OnWorkflowStarting(ctx context.Context, wctx *ExecutionContext)
	OnWorkflowStarted(ctx context.Context, wctx *ExecutionContext)
	OnActivityExecuting(ctx context.Context, wctx *ExecutionContext, record *schema.ActivityRecord)
	OnActivityExecuted(ctx context.Context, wctx *ExecutionContext, record *schema.ActivityRecord, outcomes []string)
	OnWorkflowFaulted(ctx context.Context, wctx *ExecutionContext, err error)
	OnWorkflowFinished(ctx context.Context, wctx *ExecutionContext)
}

// SuspensionHandler is optionally implemented by handlers that also want
// suspend and resume notifications.
type SuspensionHandler interface {
	OnWorkflowSuspended(ctx context.Context, wctx *ExecutionContext)
	OnWorkflowResumed(ctx context.Context, wctx *ExecutionContext)
}

// NopHandler implements every callback as a no-op. Embed it to override
// only what you need.
type NopHandler struct{}

func (NopHandler) OnWorkflowStarting(context.Context, *ExecutionContext)                          {}
func (NopHandler) OnWorkflowStarted(context.Context, *ExecutionContext)                           {}
func (NopHandler) OnActivityExecuting(context.Context, *ExecutionContext, *schema.ActivityRecord) {}
func (NopHandler) OnActivityExecuted(context.Context, *ExecutionContext, *schema.ActivityRecord, []string) {
}
func (NopHandler) OnWorkflowFaulted(context.Context, *ExecutionContext, error) {}
func (NopHandler) OnWorkflowFinished(context.Context, *ExecutionContext)       {}
func (NopHandler) OnWorkflowSuspended(context.Context, *ExecutionContext)      {}
func (NopHandler) OnWorkflowResumed(context.Context, *ExecutionContext)        {}

// handlerChain fans callbacks out to every registered handler.
type handlerChain struct {
	handlers []ContextHandler
	logger   *slog.Logger
}

func (h *handlerChain) each(ctx context.Context, name string, fn func(ContextHandler)) {
	for _, handler := range h.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.LogWith(ctx, h.logger).Error("context handler panicked",
						"callback", name, "handler", fmt.Sprintf("%T", handler), "panic", r)
				}
			}()
			fn(handler)
		}()
	}
}

func (h *handlerChain) starting(ctx context.Context, wctx *ExecutionContext) {
	h.each(ctx, "OnWorkflowStarting", func(c ContextHandler) { c.OnWorkflowStarting(ctx, wctx) })
}

func (h *handlerChain) started(ctx context.Context, wctx *ExecutionContext) {
	h.each(ctx, "OnWorkflowStarted", func(c ContextHandler) { c.OnWorkflowStarted(ctx, wctx) })
}

func (h *handlerChain) executing(ctx context.Context, wctx *ExecutionContext, rec *schema.ActivityRecord) {
	h.each(ctx, "OnActivityExecuting", func(c ContextHandler) { c.OnActivityExecuting(ctx, wctx, rec) })
}

func (h *handlerChain) executed(ctx context.Context, wctx *ExecutionContext, rec *schema.ActivityRecord, outcomes []string) {
	h.each(ctx, "OnActivityExecuted", func(c ContextHandler) {
		c.OnActivityExecuted(ctx, wctx, rec, append([]string(nil), outcomes...))
	})
}

func (h *handlerChain) faulted(ctx context.Context, wctx *ExecutionContext, err error) {
	h.each(ctx, "OnWorkflowFaulted", func(c ContextHandler) { c.OnWorkflowFaulted(ctx, wctx, err) })
}

func (h *handlerChain) finished(ctx context.Context, wctx *ExecutionContext) {
	h.each(ctx, "OnWorkflowFinished", func(c ContextHandler) { c.OnWorkflowFinished(ctx, wctx) })
}

func (h *handlerChain) suspended(ctx context.Context, wctx *ExecutionContext) {
	h.each(ctx, "OnWorkflowSuspended", func(c ContextHandler) {
		if s, ok := c.(SuspensionHandler); ok {
			s.OnWorkflowSuspended(ctx, wctx)
		}
	})
}

func (h *handlerChain) resumed(ctx context.Context, wctx *ExecutionContext) {
	h.each(ctx, "OnWorkflowResumed", func(c ContextHandler) {
		if s, ok := c.(SuspensionHandler); ok {
			s.OnWorkflowResumed(ctx, wctx)
		}
	})
}

// LoggingHandler writes lifecycle events to a slog logger.
type LoggingHandler struct {
	Logger *slog.Logger
}

func (l LoggingHandler) log(ctx context.Context) *slog.Logger {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logging.LogWith(ctx, logger)
}

func (l LoggingHandler) OnWorkflowStarting(ctx context.Context, _ *ExecutionContext) {
	l.log(ctx).Debug("workflow starting")
}

func (l LoggingHandler) OnWorkflowStarted(ctx context.Context, _ *ExecutionContext) {
	l.log(ctx).Info("workflow started")
}

func (l LoggingHandler) OnActivityExecuting(ctx context.Context, _ *ExecutionContext, rec *schema.ActivityRecord) {
	l.log(ctx).Debug("activity executing", "type", rec.Type)
}

func (l LoggingHandler) OnActivityExecuted(ctx context.Context, _ *ExecutionContext, rec *schema.ActivityRecord, outcomes []string) {
	l.log(ctx).Debug("activity executed", "type", rec.Type, "outcomes", outcomes)
}

func (l LoggingHandler) OnWorkflowFaulted(ctx context.Context, wctx *ExecutionContext, err error) {
	l.log(ctx).Error("workflow faulted", "activity", wctx.instance.FaultedActivityID, "error", err)
}

func (l LoggingHandler) OnWorkflowFinished(ctx context.Context, wctx *ExecutionContext) {
	l.log(ctx).Info("workflow finished", "steps", len(wctx.instance.ExecutionLog))
}

func (l LoggingHandler) OnWorkflowSuspended(ctx context.Context, wctx *ExecutionContext) {
	l.log(ctx).Info("workflow suspended", "blocking", wctx.instance.BlockingActivityIDs)
}

func (l LoggingHandler) OnWorkflowResumed(ctx context.Context, _ *ExecutionContext) {
	l.log(ctx).Info("workflow resumed")
}

// EventLogHandler appends lifecycle events to the store's event log.
// Append failures are logged and never interrupt the run.
type EventLogHandler struct {
	Log    *store.EventLog
	Logger *slog.Logger
}

func (h EventLogHandler) record(ctx context.Context, wctx *ExecutionContext, activityID, eventType string, payload any) {
	if err := h.Log.Record(ctx, wctx.CorrelationID(), activityID, eventType, payload); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logging.LogWith(ctx, logger).Warn("append event failed", "event", eventType, "error", err)
	}
}

func (h EventLogHandler) OnWorkflowStarting(ctx context.Context, wctx *ExecutionContext) {
	h.record(ctx, wctx, "", schema.EventWorkflowStarting, nil)
}

func (h EventLogHandler) OnWorkflowStarted(ctx context.Context, wctx *ExecutionContext) {
	h.record(ctx, wctx, "", schema.EventWorkflowStarted, nil)
}

func (h EventLogHandler) OnActivityExecuting(ctx context.Context, wctx *ExecutionContext, rec *schema.ActivityRecord) {
	h.record(ctx, wctx, rec.ID, schema.EventActivityExecuting, nil)
}

func (h EventLogHandler) OnActivityExecuted(ctx context.Context, wctx *ExecutionContext, rec *schema.ActivityRecord, outcomes []string) {
	h.record(ctx, wctx, rec.ID, schema.EventActivityExecuted, store.ExecutedPayload{Outcomes: outcomes})
}

func (h EventLogHandler) OnWorkflowFaulted(ctx context.Context, wctx *ExecutionContext, err error) {
	h.record(ctx, wctx, wctx.instance.FaultedActivityID, schema.EventWorkflowFaulted, store.FaultedPayload{Error: err.Error()})
}

func (h EventLogHandler) OnWorkflowFinished(ctx context.Context, wctx *ExecutionContext) {
	h.record(ctx, wctx, "", schema.EventWorkflowFinished, nil)
}

func (h EventLogHandler) OnWorkflowSuspended(ctx context.Context, wctx *ExecutionContext) {
	h.record(ctx, wctx, "", schema.EventWorkflowSuspended, map[string]any{"blocking": wctx.BlockingActivityIDs()})
}

func (h EventLogHandler) OnWorkflowResumed(ctx context.Context, wctx *ExecutionContext) {
	h.record(ctx, wctx, "", schema.EventWorkflowResumed, nil)
}
