package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic carries every workflow event.
const Topic = "flowgraph.events"

const defaultChannelBuffer = 64

// WatermillHub is an in-process EventHub on a watermill GoChannel.
// Delivery order across events is not guaranteed; slow subscribers drop
// events instead of blocking publishers.
type WatermillHub struct {
	pubsub *gochannel.GoChannel
	buffer int
}

var _ EventHub = (*WatermillHub)(nil)

// NewWatermillHub creates a hub. A nil logger silences watermill.
func NewWatermillHub(logger *slog.Logger) *WatermillHub {
	var adapter watermill.LoggerAdapter = watermill.NopLogger{}
	if logger != nil {
		adapter = watermill.NewSlogLogger(logger)
	}
	return &WatermillHub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            defaultChannelBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, adapter),
		buffer: defaultChannelBuffer,
	}
}

// Publish sends event to every current subscriber.
func (h *WatermillHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType)
	msg.Metadata.Set("instance_id", event.InstanceID)
	if err := h.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish stream event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events matching filter and a cancel func.
// The channel is closed after cancel or when ctx ends.
func (h *WatermillHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := h.pubsub.Subscribe(subCtx, Topic)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan StreamEvent, h.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var event StreamEvent
			if err := json.Unmarshal(msg.Payload, &event); err == nil && filter.Matches(event) {
				select {
				case out <- event:
				default:
				}
			}
			msg.Ack()
		}
	}()
	return out, cancel, nil
}

// Close shuts the pub/sub down and closes every subscription.
func (h *WatermillHub) Close() error {
	return h.pubsub.Close()
}
