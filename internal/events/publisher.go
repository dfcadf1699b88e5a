package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	applog "github.com/galdahar56/raid-logger-bot-2/internal/log"
	"github.com/galdahar56/raid-logger-bot-2/internal/metrics"
)

// MetadataRequestID carries the originating interaction's request id.
const MetadataRequestID = "request_id"

// Publisher serialises payloads as JSON and hands them to a watermill
// publisher.
type Publisher struct {
	pub    message.Publisher
	logger zerolog.Logger
	// sub is set for the in-memory bus so tests and local consumers can
	// subscribe to the same channel.
	sub message.Subscriber
}

// NewMemoryPublisher returns a process-local bus.
func NewMemoryPublisher() *Publisher {
	logger := applog.WithComponent("events")
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, newLoggerAdapter(logger))
	return &Publisher{pub: ch, sub: ch, logger: logger}
}

// NewRedisPublisher publishes to Redis streams named after each topic.
func NewRedisPublisher(client redis.UniversalClient) (*Publisher, error) {
	logger := applog.WithComponent("events")
	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, newLoggerAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("events: create redis publisher: %w", err)
	}
	return &Publisher{pub: pub, logger: logger}, nil
}

// Subscriber returns the in-memory subscriber, or nil for remote buses.
func (p *Publisher) Subscriber() message.Subscriber { return p.sub }

// Publish encodes payload and publishes it on topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	if rid := applog.RequestIDFromContext(ctx); rid != "" {
		msg.Metadata.Set(MetadataRequestID, rid)
	}
	msg.SetContext(ctx)

	err = p.pub.Publish(topic, msg)
	metrics.IncEventPublished(topic, err)
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", topic, err)
	}
	return nil
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}
