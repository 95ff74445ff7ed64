// Package eventbus delivers orchestrator events to consumers. The
// orchestrator only produces events; transports (SSE, Kafka) subscribe here.
package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/fableworks/fableflow/pkg/events"
)

// Topic carries every workflow event published through watermill.
const Topic = "fableflow.workflow.events"

// EventTypeMetadataKey holds the event type in message metadata.
const EventTypeMetadataKey = "event_type"

// Sink receives events emitted by the orchestrator.
type Sink interface {
	Publish(ctx context.Context, event events.Event) error
}

// NullSink discards every event.
type NullSink struct{}

func (NullSink) Publish(_ context.Context, _ events.Event) error {
	return nil
}

// MultiSink fans one event out to several sinks. Publish returns the first
// error but still delivers to the remaining sinks.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, event events.Event) error {
	var firstErr error

	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// WatermillSink publishes events as JSON messages on a watermill publisher.
type WatermillSink struct {
	publisher message.Publisher
}

func NewWatermillSink(publisher message.Publisher) *WatermillSink {
	return &WatermillSink{publisher: publisher}
}

func (s *WatermillSink) Publish(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.Metadata.Set(EventTypeMetadataKey, string(event.GetType()))

	return s.publisher.Publish(Topic, msg)
}

// Close closes the underlying publisher.
func (s *WatermillSink) Close() error {
	return s.publisher.Close()
}
