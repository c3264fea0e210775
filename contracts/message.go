package contracts

import (
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a single unit of work flowing through the broker. A message is
// owned by the queue once enqueued and must not be mutated afterwards; use
// Clone to derive a modified copy.
type Message struct {
	ID           string
	Body         []byte
	RoutingKey   string
	Headers      amqp.Table
	DeliveryMode uint8     // amqp.Transient or amqp.Persistent
	ExpiresAt    time.Time // zero means the message never expires on its own
	Timestamp    time.Time
}

// NewMessage creates a message with a generated ID and current UTC timestamp.
// Messages are persistent by default.
func NewMessage(routingKey string, body []byte) *Message {
	return &Message{
		ID:           uuid.New().String(),
		Body:         body,
		RoutingKey:   routingKey,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	}
}

// Clone returns a copy of the message with its own header table. The body is
// shared; callers treat it as read-only.
func (m *Message) Clone() *Message {
	c := *m
	if m.Headers != nil {
		c.Headers = make(amqp.Table, len(m.Headers))
		for k, v := range m.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}

// Expired reports whether the message expiry has passed at the given instant.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// IsPersistent reports whether the message requested persistent delivery.
func (m *Message) IsPersistent() bool {
	return m.DeliveryMode == amqp.Persistent
}
