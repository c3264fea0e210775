// Package contracts provides the core message type and shared vocabulary for
// the burrow broker.
//
// This package defines:
//   - Message: the immutable unit of work routed between exchanges and queues
//   - Sentinel errors shared across the broker packages
//   - Dead-letter reasons and the headers stamped on dead-lettered messages
//
// Headers use amqp.Table so embedded messages interoperate directly with
// AMQP 0-9-1 clients when relayed to an external broker.
package contracts
