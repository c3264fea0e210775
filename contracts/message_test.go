package contracts

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestNewMessage(t *testing.T) {
	t.Run("generates ID and timestamp", func(t *testing.T) {
		msg := NewMessage("order.created", []byte("payload"))

		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "order.created", msg.RoutingKey)
		assert.Equal(t, []byte("payload"), msg.Body)
		assert.False(t, msg.Timestamp.IsZero())
		assert.True(t, msg.IsPersistent())
	})

	t.Run("distinct messages get distinct IDs", func(t *testing.T) {
		a := NewMessage("k", nil)
		b := NewMessage("k", nil)

		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestMessageClone(t *testing.T) {
	t.Run("clone has independent headers", func(t *testing.T) {
		msg := NewMessage("k", []byte("x"))
		msg.Headers = amqp.Table{"region": "eu"}

		clone := msg.Clone()
		clone.Headers["region"] = "us"

		assert.Equal(t, "eu", msg.Headers["region"])
		assert.Equal(t, "us", clone.Headers["region"])
		assert.Equal(t, msg.ID, clone.ID)
	})

	t.Run("clone of nil headers stays nil", func(t *testing.T) {
		msg := NewMessage("k", nil)
		clone := msg.Clone()

		assert.Nil(t, clone.Headers)
	})
}

func TestMessageExpired(t *testing.T) {
	now := time.Now()

	t.Run("zero expiry never expires", func(t *testing.T) {
		msg := NewMessage("k", nil)
		assert.False(t, msg.Expired(now.Add(24*time.Hour)))
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		msg := NewMessage("k", nil)
		msg.ExpiresAt = now.Add(-time.Second)
		assert.True(t, msg.Expired(now))
	})

	t.Run("expiry boundary is expired", func(t *testing.T) {
		msg := NewMessage("k", nil)
		msg.ExpiresAt = now
		assert.True(t, msg.Expired(now))
	})
}

func TestDeathCount(t *testing.T) {
	assert.Equal(t, 0, DeathCount(nil))
	assert.Equal(t, 0, DeathCount(map[string]interface{}{}))
	assert.Equal(t, 2, DeathCount(map[string]interface{}{HeaderDeathCount: 2}))
	assert.Equal(t, 3, DeathCount(map[string]interface{}{HeaderDeathCount: int64(3)}))
	assert.Equal(t, 4, DeathCount(map[string]interface{}{HeaderDeathCount: float64(4)}))
	assert.Equal(t, 0, DeathCount(map[string]interface{}{HeaderDeathCount: "bad"}))
}
