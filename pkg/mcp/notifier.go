package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// notifiedEvents are forwarded to the session watching the instance.
var notifiedEvents = []string{
	schema.EventWorkflowSuspended,
	schema.EventWorkflowFaulted,
	schema.EventWorkflowFinished,
}

// NotificationSender is the push side of an MCP server.
type NotificationSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// Notifier pushes instance lifecycle changes to the MCP session that owns the
// instance. Delivery is best-effort.
type Notifier struct {
	sender   NotificationSender
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(sender NotificationSender, sessions *SessionRegistry, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{sender: sender, sessions: sessions, logger: logger}
}

// Notify sends event to the session registered for its instance. Instances
// nobody watches, and sessions that went away, are not errors.
func (n *Notifier) Notify(event streaming.StreamEvent) error {
	sessionID, ok := n.sessions.SessionFor(event.InstanceID)
	if !ok {
		return nil
	}
	payload := map[string]any{
		"level":  "info",
		"logger": "flowgraph",
		"data": map[string]any{
			"instance_id":   event.InstanceID,
			"definition_id": event.DefinitionID,
			"event":         event.EventType,
			"status":        event.Status,
			"error":         event.Error,
		},
	}
	err := n.sender.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	if err != nil {
		return err
	}
	if event.EventType != schema.EventWorkflowSuspended {
		n.sessions.Forget(event.InstanceID)
	}
	return nil
}

// Watch forwards hub events until ctx ends or the returned stop is called.
func (n *Notifier) Watch(ctx context.Context, hub streaming.EventHub) (func(), error) {
	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: notifiedEvents})
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			if err := n.Notify(event); err != nil {
				n.logger.Warn("notify session", "instance", event.InstanceID, "error", err)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
