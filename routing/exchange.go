package routing

import (
	"fmt"

	"github.com/burrowmq/burrow-go/contracts"
)

// ExchangeType selects the routing semantics of an exchange.
type ExchangeType string

const (
	// Direct routes on an exact routing-key match.
	Direct ExchangeType = "direct"

	// Topic routes on dot-separated patterns where * matches exactly one
	// segment and # matches zero or more segments.
	Topic ExchangeType = "topic"

	// Fanout routes to every bound queue, ignoring the routing key.
	Fanout ExchangeType = "fanout"

	// Headers routes on message headers against per-binding predicates.
	Headers ExchangeType = "headers"
)

// ParseExchangeType validates a textual exchange type. Unknown types are a
// declaration-time error.
func ParseExchangeType(s string) (ExchangeType, error) {
	switch ExchangeType(s) {
	case Direct, Topic, Fanout, Headers:
		return ExchangeType(s), nil
	}
	return "", fmt.Errorf("%w: %q", contracts.ErrUnknownExchangeType, s)
}

// Exchange is a stateless router. It carries no message state; all routing
// decisions are made against the binding table.
type Exchange struct {
	Name    string
	Type    ExchangeType
	Durable bool
}
