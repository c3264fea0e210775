// Package bridge connects the embedded broker to an external AMQP 0-9-1
// broker. The Shovel consumes from a local queue and republishes each
// message over an amqp091-go channel, preserving identity, headers,
// delivery mode and remaining TTL.
package bridge
