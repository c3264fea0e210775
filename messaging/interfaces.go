package messaging

import "sync/atomic"

// EventEmitter receives the broker's non-fatal observable conditions. None
// of these are errors thrown across queue boundaries; they exist so an
// embedding service can watch what the broker drops, rejects and
// dead-letters.
type EventEmitter interface {
	// RecordRoutingMiss records a publish that matched no binding.
	RecordRoutingMiss(exchange, routingKey string)

	// RecordQueueFull records an enqueue refused by reject-publish.
	RecordQueueFull(queue string)

	// RecordConsumerRejection records a handler rejection routed to the
	// dead-letter exchange.
	RecordConsumerRejection(queue, messageID string)

	// RecordDeadLetter records a successful dead-letter republish.
	RecordDeadLetter(queue, reason string)

	// RecordDeadLetterDropped records a dead-lettered message that was
	// discarded: no target configured, or the target refused it.
	RecordDeadLetterDropped(queue, reason string)

	// GetStats returns current counters.
	GetStats() BrokerStats
}

// BrokerStats contains broker-wide event counters.
type BrokerStats struct {
	RoutingMisses      int64
	QueueFullRejects   int64
	ConsumerRejections int64
	DeadLettered       int64
	DeadLetterDropped  int64
}

// NoOpEventEmitter is a no-op implementation of EventEmitter.
type NoOpEventEmitter struct{}

// RecordRoutingMiss does nothing.
func (n *NoOpEventEmitter) RecordRoutingMiss(exchange, routingKey string) {}

// RecordQueueFull does nothing.
func (n *NoOpEventEmitter) RecordQueueFull(queue string) {}

// RecordConsumerRejection does nothing.
func (n *NoOpEventEmitter) RecordConsumerRejection(queue, messageID string) {}

// RecordDeadLetter does nothing.
func (n *NoOpEventEmitter) RecordDeadLetter(queue, reason string) {}

// RecordDeadLetterDropped does nothing.
func (n *NoOpEventEmitter) RecordDeadLetterDropped(queue, reason string) {}

// GetStats returns empty stats.
func (n *NoOpEventEmitter) GetStats() BrokerStats {
	return BrokerStats{}
}

// CollectingEventEmitter counts events with atomic counters. Safe for
// concurrent use.
type CollectingEventEmitter struct {
	routingMisses      atomic.Int64
	queueFullRejects   atomic.Int64
	consumerRejections atomic.Int64
	deadLettered       atomic.Int64
	deadLetterDropped  atomic.Int64
}

// NewCollectingEventEmitter creates a counting event emitter.
func NewCollectingEventEmitter() *CollectingEventEmitter {
	return &CollectingEventEmitter{}
}

// RecordRoutingMiss increments the routing-miss counter.
func (c *CollectingEventEmitter) RecordRoutingMiss(exchange, routingKey string) {
	c.routingMisses.Add(1)
}

// RecordQueueFull increments the queue-full counter.
func (c *CollectingEventEmitter) RecordQueueFull(queue string) {
	c.queueFullRejects.Add(1)
}

// RecordConsumerRejection increments the consumer-rejection counter.
func (c *CollectingEventEmitter) RecordConsumerRejection(queue, messageID string) {
	c.consumerRejections.Add(1)
}

// RecordDeadLetter increments the dead-letter counter.
func (c *CollectingEventEmitter) RecordDeadLetter(queue, reason string) {
	c.deadLettered.Add(1)
}

// RecordDeadLetterDropped increments the dropped dead-letter counter.
func (c *CollectingEventEmitter) RecordDeadLetterDropped(queue, reason string) {
	c.deadLetterDropped.Add(1)
}

// GetStats returns current counters.
func (c *CollectingEventEmitter) GetStats() BrokerStats {
	return BrokerStats{
		RoutingMisses:      c.routingMisses.Load(),
		QueueFullRejects:   c.queueFullRejects.Load(),
		ConsumerRejections: c.consumerRejections.Load(),
		DeadLettered:       c.deadLettered.Load(),
		DeadLetterDropped:  c.deadLetterDropped.Load(),
	}
}
