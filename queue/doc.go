// Package queue implements the ordered, bounded message store at the heart
// of the broker: FIFO delivery, max-length with configurable overflow,
// per-message and queue-level TTL, delivery-count tracking and dead-letter
// handoff.
//
// Each queue serializes its mutations behind a single lock and owns a
// background sweeper for expired messages. Queues share no state with each
// other; cross-queue flow happens only through the dead-letter collaborator.
package queue
