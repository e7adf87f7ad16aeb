package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/escalate/pkg/channels/gochannel"
	"github.com/dukex/escalate/pkg/channels/kafka"
	"github.com/dukex/escalate/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// EventBusConfig selects the event bus transport.
type EventBusConfig struct {
	Provider      string
	ConsumerGroup string
	OTELEnabled   bool
}

// NewEventBus builds a watermill event bus over gochannel or kafka. Kafka
// brokers are read from KAFKA_BROKERS.
func NewEventBus(config EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch config.Provider {
	case "gochannel", "":
		pub, sub := gochannel.CreateChannel(adapter)

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, kafka.Config{
			Brokers:       kafka.BrokersFromEnv(),
			ConsumerGroup: config.ConsumerGroup,
			OTELEnabled:   config.OTELEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, config.Provider)
	}
}
