// Package routing implements the stateless routing layer of the broker:
// exchange types, the topic and headers matchers, and the binding table that
// resolves a published message to its destination queues.
//
// The binding table guards topology with its own lock so administrative
// declarations never contend with per-queue message locks.
package routing
