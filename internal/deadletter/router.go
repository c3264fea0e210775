package deadletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/burrowmq/burrow-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher republishes dead-lettered messages through an exchange.
type Publisher interface {
	PublishMessage(ctx context.Context, exchange string, msg *contracts.Message) error
}

// TargetResolver looks up the dead-letter target configured on a queue.
type TargetResolver interface {
	DeadLetterTarget(queue string) (exchange, routingKey string, ok bool)
}

// EventEmitter receives dead-letter outcomes for observability.
type EventEmitter interface {
	RecordDeadLetter(queue, reason string)
	RecordDeadLetterDropped(queue, reason string)
}

type noopEmitter struct{}

func (noopEmitter) RecordDeadLetter(queue, reason string)        {}
func (noopEmitter) RecordDeadLetterDropped(queue, reason string) {}

// Router republishes messages removed from a queue for a dead-letter cause
// through the queue's configured dead-letter exchange. A queue without a
// configured target discards the message; the drop is surfaced as a warning
// event, never as an error crossing the queue boundary.
type Router struct {
	publisher Publisher
	resolver  TargetResolver
	emitter   EventEmitter
	logger    *slog.Logger
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithRouterEmitter sets the event emitter.
func WithRouterEmitter(emitter EventEmitter) RouterOption {
	return func(r *Router) {
		r.emitter = emitter
	}
}

// NewRouter creates a dead-letter router.
func NewRouter(publisher Publisher, resolver TargetResolver, options ...RouterOption) *Router {
	r := &Router{
		publisher: publisher,
		resolver:  resolver,
		emitter:   noopEmitter{},
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// DeadLetter republishes the message through the origin queue's dead-letter
// target, stamping death metadata headers. Implements queue.DeadLetterer.
func (r *Router) DeadLetter(ctx context.Context, msg *contracts.Message, originQueue, reason string) {
	exchange, routingKey, ok := r.resolver.DeadLetterTarget(originQueue)
	if !ok {
		r.emitter.RecordDeadLetterDropped(originQueue, reason)
		r.logger.Warn("discarding dead-lettered message: no dead-letter target configured",
			"queue", originQueue,
			"messageId", msg.ID,
			"reason", reason,
		)
		return
	}

	dead := stampDeath(msg, originQueue, reason, routingKey)

	if err := r.publisher.PublishMessage(ctx, exchange, dead); err != nil {
		r.emitter.RecordDeadLetterDropped(originQueue, reason)
		r.logger.Error("failed to republish dead-lettered message",
			"queue", originQueue,
			"exchange", exchange,
			"routingKey", routingKey,
			"messageId", msg.ID,
			"error", err,
		)
		return
	}

	r.emitter.RecordDeadLetter(originQueue, reason)
	r.logger.Info("dead-lettered message",
		"queue", originQueue,
		"exchange", exchange,
		"routingKey", routingKey,
		"messageId", msg.ID,
		"reason", reason,
	)
}

// stampDeath derives the republished message: new routing key, death
// metadata headers, and no inherited expiry so a repeatedly expiring message
// cannot loop through the target instantly. The first-death queue is kept
// across repeated deaths while the death count increments.
func stampDeath(msg *contracts.Message, originQueue, reason, routingKey string) *contracts.Message {
	dead := msg.Clone()
	dead.RoutingKey = routingKey
	dead.ExpiresAt = time.Time{}

	if dead.Headers == nil {
		dead.Headers = make(amqp.Table, 4)
	}
	if _, ok := dead.Headers[contracts.HeaderFirstDeathQueue]; !ok {
		dead.Headers[contracts.HeaderFirstDeathQueue] = originQueue
	}
	dead.Headers[contracts.HeaderDeathReason] = reason
	dead.Headers[contracts.HeaderDeathCount] = contracts.DeathCount(dead.Headers) + 1
	dead.Headers[contracts.HeaderDeathTime] = time.Now().Unix()
	return dead
}
