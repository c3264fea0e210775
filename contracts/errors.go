package contracts

import "errors"

// Common errors returned by broker operations.
var (
	// ErrQueueFull indicates an enqueue was rejected by the reject-publish
	// overflow policy.
	ErrQueueFull = errors.New("burrow: queue full")

	// ErrQueueClosed indicates the queue has been closed.
	ErrQueueClosed = errors.New("burrow: queue closed")

	// ErrUnknownExchange indicates a publish or bind referenced an exchange
	// that was never declared.
	ErrUnknownExchange = errors.New("burrow: unknown exchange")

	// ErrUnknownQueue indicates an operation referenced a queue that was
	// never declared.
	ErrUnknownQueue = errors.New("burrow: unknown queue")

	// ErrUnknownExchangeType indicates a declaration with an exchange type
	// outside direct, topic, fanout and headers.
	ErrUnknownExchangeType = errors.New("burrow: unknown exchange type")

	// ErrInvalidPattern indicates a binding pattern that fails validation
	// for the exchange type.
	ErrInvalidPattern = errors.New("burrow: invalid binding pattern")

	// ErrDeclarationMismatch indicates a redeclaration with different
	// properties than the existing entity.
	ErrDeclarationMismatch = errors.New("burrow: declaration mismatch")

	// ErrUnknownDeliveryTag indicates an ack or nack for a delivery tag that
	// is not outstanding.
	ErrUnknownDeliveryTag = errors.New("burrow: unknown delivery tag")

	// ErrConsumerExists indicates a subscribe with a consumer tag already in
	// use on the queue.
	ErrConsumerExists = errors.New("burrow: consumer tag already in use")

	// ErrUnknownConsumer indicates an unsubscribe for a consumer tag that is
	// not registered.
	ErrUnknownConsumer = errors.New("burrow: unknown consumer")

	// ErrBrokerClosed indicates an operation on a closed broker.
	ErrBrokerClosed = errors.New("burrow: broker closed")
)
