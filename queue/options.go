package queue

import (
	"log/slog"
	"time"
)

// OverflowPolicy decides what happens when an enqueue would push a queue past
// its max length.
type OverflowPolicy string

const (
	// OverflowDropHead evicts the oldest ready message to admit the new one.
	// Evicted messages are dead-lettered when a target is configured.
	OverflowDropHead OverflowPolicy = "drop-head"

	// OverflowRejectPublish rejects the new message and leaves the queue
	// unchanged.
	OverflowRejectPublish OverflowPolicy = "reject-publish"
)

// DefaultSweepInterval is how often the background sweep looks for expired
// messages when no interval is configured.
const DefaultSweepInterval = time.Second

// Options contains configuration parameters for a Queue.
type Options struct {
	// Durable marks the queue as recoverable on restart. The in-memory core
	// only records the flag; persistence is delegated to an external
	// storage collaborator.
	Durable bool

	// MaxLength bounds the number of ready messages. Zero means unbounded.
	MaxLength int

	// Overflow selects the policy applied when MaxLength is reached.
	// Default: OverflowDropHead.
	Overflow OverflowPolicy

	// MessageTTL applies a queue-level expiry to every message. A message
	// carrying its own shorter expiry keeps it. Zero means no queue TTL.
	MessageTTL time.Duration

	// DeliveryLimit bounds redeliveries. A message nacked back onto the
	// queue more than DeliveryLimit times is dead-lettered instead of
	// requeued. Zero means unlimited.
	DeliveryLimit int

	// DeadLetterExchange and DeadLetterRoutingKey name the republish target
	// for expired, evicted and rejected messages.
	DeadLetterExchange   string
	DeadLetterRoutingKey string

	// SweepInterval controls the background expiry sweep. Zero uses
	// DefaultSweepInterval; negative disables the sweep, leaving expiry to
	// the lazy check on dequeue.
	SweepInterval time.Duration

	// DeadLetterer receives messages removed for a dead-letter cause. Nil
	// means such messages are dropped with a log entry.
	DeadLetterer DeadLetterer

	// Logger used for queue lifecycle and drop events.
	Logger *slog.Logger
}

// Option is a functional option for configuring a Queue.
type Option func(*Options)

// WithDurable marks the queue durable.
func WithDurable(durable bool) Option {
	return func(o *Options) {
		o.Durable = durable
	}
}

// WithMaxLength bounds the ready message count.
func WithMaxLength(n int) Option {
	return func(o *Options) {
		o.MaxLength = n
	}
}

// WithOverflow sets the overflow policy.
func WithOverflow(policy OverflowPolicy) Option {
	return func(o *Options) {
		o.Overflow = policy
	}
}

// WithMessageTTL sets the queue-level message TTL.
func WithMessageTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.MessageTTL = ttl
	}
}

// WithDeliveryLimit bounds redeliveries before dead-lettering.
func WithDeliveryLimit(n int) Option {
	return func(o *Options) {
		o.DeliveryLimit = n
	}
}

// WithDeadLetter sets the dead-letter exchange and routing key.
func WithDeadLetter(exchange, routingKey string) Option {
	return func(o *Options) {
		o.DeadLetterExchange = exchange
		o.DeadLetterRoutingKey = routingKey
	}
}

// WithSweepInterval sets the background expiry sweep interval.
func WithSweepInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.SweepInterval = interval
	}
}

// WithDeadLetterer sets the dead-letter collaborator.
func WithDeadLetterer(dl DeadLetterer) Option {
	return func(o *Options) {
		o.DeadLetterer = dl
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
