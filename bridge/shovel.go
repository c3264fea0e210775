package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/burrowmq/burrow-go/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the slice of amqp091-go's channel API the shovel needs.
// *amqp.Channel satisfies it.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Shovel relays messages from an embedded queue to an external AMQP broker.
// It is a ConsumerHandler: subscribe it to a queue and every consumed
// message is republished to the target exchange. A failed relay returns the
// error to the dispatcher, so the usual retry and dead-letter machinery
// applies.
type Shovel struct {
	publisher      AMQPPublisher
	targetExchange string
	targetKey      string
	logger         *slog.Logger
}

// ShovelOption configures the Shovel.
type ShovelOption func(*Shovel)

// WithShovelLogger sets the logger.
func WithShovelLogger(logger *slog.Logger) ShovelOption {
	return func(s *Shovel) {
		s.logger = logger
	}
}

// WithTargetRoutingKey fixes the routing key used on the target broker.
// When unset, each message keeps its own routing key.
func WithTargetRoutingKey(key string) ShovelOption {
	return func(s *Shovel) {
		s.targetKey = key
	}
}

// NewShovel creates a shovel publishing to the given exchange on the
// external broker.
func NewShovel(publisher AMQPPublisher, targetExchange string, options ...ShovelOption) (*Shovel, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}

	s := &Shovel{
		publisher:      publisher,
		targetExchange: targetExchange,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Handle implements messaging.ConsumerHandler by relaying the delivery to
// the external broker.
func (s *Shovel) Handle(ctx context.Context, delivery *queue.Delivery) error {
	msg := delivery.Message

	key := s.targetKey
	if key == "" {
		key = msg.RoutingKey
	}

	publishing := amqp.Publishing{
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Headers:      msg.Headers,
		Body:         msg.Body,
		DeliveryMode: msg.DeliveryMode,
	}
	if !msg.ExpiresAt.IsZero() {
		remaining := time.Until(msg.ExpiresAt)
		if remaining <= 0 {
			// Expired in the handoff window; the target would only
			// discard it.
			s.logger.Debug("skipping expired message", "messageId", msg.ID)
			return nil
		}
		publishing.Expiration = fmt.Sprintf("%d", remaining.Milliseconds())
	}

	err := s.publisher.PublishWithContext(ctx, s.targetExchange, key, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to relay message %s: %w", msg.ID, err)
	}

	s.logger.Debug("relayed message",
		"messageId", msg.ID,
		"sourceQueue", delivery.Queue,
		"targetExchange", s.targetExchange,
		"routingKey", key,
	)
	return nil
}
