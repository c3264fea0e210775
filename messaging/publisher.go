package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/burrowmq/burrow-go/contracts"
	"github.com/burrowmq/burrow-go/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Router resolves an exchange and routing key to destination queue names.
type Router interface {
	Route(exchange, routingKey string, headers amqp.Table) ([]string, error)
}

// QueueProvider resolves queue names to live queues.
type QueueProvider interface {
	GetQueue(name string) (*queue.Queue, bool)
}

// MessagePublisher routes messages through the binding table and enqueues
// them on every matched queue.
type MessagePublisher struct {
	router  Router
	queues  QueueProvider
	emitter EventEmitter
	logger  *slog.Logger
}

// PublisherOption configures the MessagePublisher.
type PublisherOption func(*MessagePublisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *MessagePublisher) {
		p.logger = logger
	}
}

// WithPublisherEmitter sets the event emitter.
func WithPublisherEmitter(emitter EventEmitter) PublisherOption {
	return func(p *MessagePublisher) {
		p.emitter = emitter
	}
}

// NewMessagePublisher creates a publisher over a router and queue provider.
func NewMessagePublisher(router Router, queues QueueProvider, options ...PublisherOption) *MessagePublisher {
	p := &MessagePublisher{
		router:  router,
		queues:  queues,
		emitter: &NoOpEventEmitter{},
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// PublishOptions configures message publishing.
type PublishOptions struct {
	Headers      amqp.Table
	DeliveryMode uint8
	TTL          time.Duration
	ttlSet       bool
}

// PublishOption configures publish behavior.
type PublishOption func(*PublishOptions)

// WithTTL sets the message time-to-live. A zero TTL expires the message
// immediately.
func WithTTL(ttl time.Duration) PublishOption {
	return func(opts *PublishOptions) {
		opts.TTL = ttl
		opts.ttlSet = true
	}
}

// WithPersistent sets the delivery mode.
func WithPersistent(persistent bool) PublishOption {
	return func(opts *PublishOptions) {
		if persistent {
			opts.DeliveryMode = amqp.Persistent
		} else {
			opts.DeliveryMode = amqp.Transient
		}
	}
}

// WithHeaders merges custom headers.
func WithHeaders(headers amqp.Table) PublishOption {
	return func(opts *PublishOptions) {
		if opts.Headers == nil {
			opts.Headers = make(amqp.Table)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

// WithHeader sets a single header.
func WithHeader(key string, value interface{}) PublishOption {
	return func(opts *PublishOptions) {
		if opts.Headers == nil {
			opts.Headers = make(amqp.Table)
		}
		opts.Headers[key] = value
	}
}

// Publish builds a message from the body and options and routes it. A
// publish matching no binding is dropped silently and recorded as a routing
// miss; a matched queue refusing the message under reject-publish surfaces
// as an aggregate error wrapping contracts.ErrQueueFull.
func (p *MessagePublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, options ...PublishOption) error {
	opts := PublishOptions{
		DeliveryMode: amqp.Persistent,
	}

	for _, opt := range options {
		opt(&opts)
	}

	msg := contracts.NewMessage(routingKey, body)
	msg.Headers = opts.Headers
	msg.DeliveryMode = opts.DeliveryMode
	if opts.ttlSet {
		msg.ExpiresAt = time.Now().Add(opts.TTL)
	}

	return p.PublishMessage(ctx, exchange, msg)
}

// PublishMessage routes a prebuilt message through an exchange using the
// message's own routing key. The dead-letter router republishes through this
// path to preserve message identity.
func (p *MessagePublisher) PublishMessage(ctx context.Context, exchange string, msg *contracts.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	targets, err := p.router.Route(exchange, msg.RoutingKey, msg.Headers)
	if err != nil {
		return fmt.Errorf("failed to route message: %w", err)
	}

	// Resolve names first so the default exchange's "queue name as routing
	// key" case folds into the same miss handling as unmatched bindings.
	matched := make([]*queue.Queue, 0, len(targets))
	for _, name := range targets {
		if q, ok := p.queues.GetQueue(name); ok {
			matched = append(matched, q)
		}
	}

	if len(matched) == 0 {
		p.emitter.RecordRoutingMiss(exchange, msg.RoutingKey)
		p.logger.Debug("message matched no queue",
			"exchange", exchange,
			"routingKey", msg.RoutingKey,
			"messageId", msg.ID,
		)
		return nil
	}

	rejected := 0
	for _, q := range matched {
		res, err := q.Enqueue(ctx, msg)
		if err != nil {
			p.logger.Warn("enqueue failed",
				"queue", q.Name(),
				"messageId", msg.ID,
				"error", err,
			)
			rejected++
			continue
		}
		if res == queue.Rejected {
			p.emitter.RecordQueueFull(q.Name())
			rejected++
		}
	}

	if rejected > 0 {
		return fmt.Errorf("publish rejected by %d of %d matched queues: %w",
			rejected, len(matched), contracts.ErrQueueFull)
	}
	return nil
}
