package streaming

import (
	"context"
	"log/slog"
	"time"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Handler publishes workflow lifecycle callbacks to an EventHub.
// Publish failures are logged and never interrupt the run.
type Handler struct {
	Hub    EventHub
	Logger *slog.Logger
	Now    func() time.Time
}

var (
	_ engine.ContextHandler    = (*Handler)(nil)
	_ engine.SuspensionHandler = (*Handler)(nil)
)

func (h *Handler) publish(ctx context.Context, wctx *engine.ExecutionContext, event StreamEvent) {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	event.InstanceID = wctx.CorrelationID()
	event.DefinitionID = wctx.DefinitionID()
	event.Status = string(wctx.Status())
	event.Timestamp = now().UTC()

	if err := h.Hub.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logging.LogWith(ctx, logger).Warn("publish stream event", "event", event.EventType, "error", err)
	}
}

func (h *Handler) OnWorkflowStarting(ctx context.Context, wctx *engine.ExecutionContext) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowStarting})
}

func (h *Handler) OnWorkflowStarted(ctx context.Context, wctx *engine.ExecutionContext) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowStarted})
}

func (h *Handler) OnActivityExecuting(ctx context.Context, wctx *engine.ExecutionContext, rec *schema.ActivityRecord) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventActivityExecuting, ActivityID: rec.ID})
}

func (h *Handler) OnActivityExecuted(ctx context.Context, wctx *engine.ExecutionContext, rec *schema.ActivityRecord, outcomes []string) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventActivityExecuted, ActivityID: rec.ID, Outcomes: outcomes})
}

func (h *Handler) OnWorkflowFaulted(ctx context.Context, wctx *engine.ExecutionContext, err error) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowFaulted, Error: err.Error()})
}

func (h *Handler) OnWorkflowFinished(ctx context.Context, wctx *engine.ExecutionContext) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowFinished})
}

func (h *Handler) OnWorkflowSuspended(ctx context.Context, wctx *engine.ExecutionContext) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowSuspended})
}

func (h *Handler) OnWorkflowResumed(ctx context.Context, wctx *engine.ExecutionContext) {
	h.publish(ctx, wctx, StreamEvent{EventType: schema.EventWorkflowResumed})
}
