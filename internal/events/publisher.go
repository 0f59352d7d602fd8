package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/7p-education/platform/internal/config"
)

// Transport bundles the publisher and subscriber sides of the event bus
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Kind       string
}

// NewTransport uses Kafka when brokers are configured and an in-process channel otherwise
func NewTransport(cfg config.KafkaConfig, logger *slog.Logger) (*Transport, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if len(cfg.Brokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, wmLogger)
		return &Transport{Publisher: ch, Subscriber: ch, Kind: "gochannel"}, nil
	}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.Brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
		ConsumerGroup:         cfg.ConsumerGroup,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create kafka subscriber: %w", err)
	}

	return &Transport{Publisher: publisher, Subscriber: subscriber, Kind: "kafka"}, nil
}

func (t *Transport) Close() error {
	if err := t.Publisher.Close(); err != nil {
		return err
	}
	// gochannel uses one value for both sides
	if t.Kind == "gochannel" {
		return nil
	}
	return t.Subscriber.Close()
}

// WatermillPublisher publishes events with the event type as topic
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher, logger: logger}
}

func (p *WatermillPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("type", string(event.Type))
	msg.Metadata.Set("user_id", event.UserID)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(string(event.Type), msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	p.logger.Debug("Event published", "type", event.Type, "event_id", event.ID)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return nil
}
