// Package messaging connects the routing and queue layers: the publisher
// fans a message out to every matched queue, and the dispatcher delivers
// queued messages to consumers under per-consumer prefetch limits.
//
// Acknowledgment follows the handler's return value: nil acknowledges, an
// error consults the ErrorHandler, which may acknowledge anyway, requeue for
// retry, or reject into the dead-letter exchange.
package messaging
