package bus

import (
	"fmt"

	"github.com/assurnet/vigil/internal/domain"
)

// New creates a new event bus based on configuration.
// The channel bus runs in-process; NATS and Kafka connect to brokers.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "kafka":
		return NewKafkaBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
