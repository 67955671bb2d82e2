package events

import (
	"context"

	"github.com/rs/zerolog"

	"license-billing/internal/config"
	"license-billing/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = (*NoopPublisher)(nil)

// NoopPublisher drops events; used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, adapter.BillingEvent) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

// New returns a Kafka publisher when brokers are configured and a NoopPublisher otherwise.
func New(cfg config.KafkaConfig, logger *zerolog.Logger) (adapter.EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka brokers not configured, billing events are dropped")
		return NoopPublisher{}, nil
	}
	return NewKafkaPublisher(cfg, logger)
}
