// Package deadletter routes messages a queue gave up on (expired, evicted,
// rejected or past their delivery limit) back through the routing layer via
// the queue's configured dead-letter exchange.
//
// The router stamps death metadata headers on each republished message so
// dead-letter consumers can see where a message came from and why it died.
package deadletter
