package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/fableworks/fableflow/pkg/eventbus"
	"github.com/fableworks/fableflow/pkg/eventbus/kafka"
)

// NewEventSink builds the external event sink for the given provider. The
// in-process broker for SSE consumers is wired separately; this sink carries
// events out of the process.
func NewEventSink(provider, kafkaBrokers string, logger *slog.Logger) (eventbus.Sink, error) {
	switch provider {
	case "kafka":
		pub, err := kafka.CreatePublisher(kafkaBrokers, watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
		}

		return eventbus.NewWatermillSink(pub), nil
	case "memory":
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillSink(pubSub), nil
	case "none", "":
		return eventbus.NullSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
