package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

type sentNotification struct {
	session string
	params  map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, _ string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{session: sessionID, params: params})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotifier_RoutesToOwningSession(t *testing.T) {
	sender := &fakeSender{}
	sessions := NewSessionRegistry()
	sessions.Register("wf-1", "s1")
	n := NewNotifier(sender, sessions, nil)

	require.NoError(t, n.Notify(streaming.StreamEvent{InstanceID: "wf-2", EventType: schema.EventWorkflowFinished}))
	assert.Zero(t, sender.count())

	require.NoError(t, n.Notify(streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowSuspended}))
	require.NoError(t, n.Notify(streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowFinished, Status: "Finished"}))
	require.Equal(t, 2, sender.count())
	assert.Equal(t, "s1", sender.sent[1].session)
	data := sender.sent[1].params["data"].(map[string]any)
	assert.Equal(t, "Finished", data["status"])

	// finished instances are no longer tracked
	_, ok := sessions.SessionFor("wf-1")
	assert.False(t, ok)
}

func TestNotifier_DropsGoneSessions(t *testing.T) {
	sender := &fakeSender{err: server.ErrSessionNotFound}
	sessions := NewSessionRegistry()
	sessions.Register("wf-1", "s1")
	n := NewNotifier(sender, sessions, nil)

	require.NoError(t, n.Notify(streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowFaulted}))
	_, ok := sessions.SessionFor("wf-1")
	assert.False(t, ok)

	sender.err = errors.New("transport down")
	sessions.Register("wf-1", "s1")
	assert.Error(t, n.Notify(streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowFaulted}))
}

func TestNotifier_WatchesHub(t *testing.T) {
	hub := streaming.NewWatermillHub(nil)
	defer hub.Close()
	sender := &fakeSender{}
	sessions := NewSessionRegistry()
	sessions.Register("wf-1", "s1")
	n := NewNotifier(sender, sessions, nil)

	stop, err := n.Watch(context.Background(), hub)
	require.NoError(t, err)
	defer stop()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventActivityExecuted}))
	require.NoError(t, hub.Publish(ctx, streaming.StreamEvent{InstanceID: "wf-1", EventType: schema.EventWorkflowSuspended}))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
}
