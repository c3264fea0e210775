package routing

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestMatchHeaders(t *testing.T) {
	t.Run("all mode requires every header", func(t *testing.T) {
		args := amqp.Table{HeaderMatchKey: "all", "format": "pdf", "type": "report"}

		assert.True(t, MatchHeaders(args, amqp.Table{"format": "pdf", "type": "report", "extra": "x"}))
		assert.False(t, MatchHeaders(args, amqp.Table{"format": "pdf"}))
		assert.False(t, MatchHeaders(args, amqp.Table{"format": "pdf", "type": "invoice"}))
	})

	t.Run("any mode requires at least one header", func(t *testing.T) {
		args := amqp.Table{HeaderMatchKey: "any", "format": "pdf", "type": "report"}

		assert.True(t, MatchHeaders(args, amqp.Table{"format": "pdf"}))
		assert.True(t, MatchHeaders(args, amqp.Table{"type": "report", "other": 1}))
		assert.False(t, MatchHeaders(args, amqp.Table{"format": "zip"}))
		assert.False(t, MatchHeaders(args, amqp.Table{}))
	})

	t.Run("all is the default mode", func(t *testing.T) {
		args := amqp.Table{"format": "pdf"}

		assert.True(t, MatchHeaders(args, amqp.Table{"format": "pdf"}))
		assert.False(t, MatchHeaders(args, amqp.Table{"format": "zip"}))
	})

	t.Run("x- keys do not participate in matching", func(t *testing.T) {
		args := amqp.Table{HeaderMatchKey: "all", "x-internal": "v", "format": "pdf"}

		assert.True(t, MatchHeaders(args, amqp.Table{"format": "pdf"}))
	})

	t.Run("array and table values match by content", func(t *testing.T) {
		args := amqp.Table{HeaderMatchKey: "all", "tags": []interface{}{"a", "b"}}

		assert.True(t, MatchHeaders(args, amqp.Table{"tags": []interface{}{"a", "b"}}))
		assert.False(t, MatchHeaders(args, amqp.Table{"tags": []interface{}{"a"}}))

		nested := amqp.Table{HeaderMatchKey: "all", "meta": amqp.Table{"region": "eu"}}
		assert.True(t, MatchHeaders(nested, amqp.Table{"meta": amqp.Table{"region": "eu"}}))
		assert.False(t, MatchHeaders(nested, amqp.Table{"meta": amqp.Table{"region": "us"}}))
	})

	t.Run("empty all predicate matches anything", func(t *testing.T) {
		assert.True(t, MatchHeaders(amqp.Table{HeaderMatchKey: "all"}, amqp.Table{"any": "thing"}))
	})
}

func TestValidateHeaderArguments(t *testing.T) {
	assert.NoError(t, ValidateHeaderArguments(nil))
	assert.NoError(t, ValidateHeaderArguments(amqp.Table{"format": "pdf"}))
	assert.NoError(t, ValidateHeaderArguments(amqp.Table{HeaderMatchKey: "all"}))
	assert.NoError(t, ValidateHeaderArguments(amqp.Table{HeaderMatchKey: "any"}))
	assert.Error(t, ValidateHeaderArguments(amqp.Table{HeaderMatchKey: "some"}))
	assert.Error(t, ValidateHeaderArguments(amqp.Table{HeaderMatchKey: 7}))
}
