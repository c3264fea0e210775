package routing

import (
	"testing"

	"github.com/burrowmq/burrow-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclareExchange(t *testing.T) {
	t.Run("declares valid exchange", func(t *testing.T) {
		table := NewBindingTable()

		err := table.DeclareExchange(Exchange{Name: "orders", Type: Topic, Durable: true})

		assert.NoError(t, err)
		ex, ok := table.GetExchange("orders")
		assert.True(t, ok)
		assert.Equal(t, Topic, ex.Type)
	})

	t.Run("rejects unknown type at declaration time", func(t *testing.T) {
		table := NewBindingTable()

		err := table.DeclareExchange(Exchange{Name: "orders", Type: "broadcast"})

		assert.ErrorIs(t, err, contracts.ErrUnknownExchangeType)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		table := NewBindingTable()

		err := table.DeclareExchange(Exchange{Name: "", Type: Direct})

		assert.Error(t, err)
	})

	t.Run("identical redeclaration is a no-op", func(t *testing.T) {
		table := NewBindingTable()
		ex := Exchange{Name: "orders", Type: Direct, Durable: true}

		require.NoError(t, table.DeclareExchange(ex))
		assert.NoError(t, table.DeclareExchange(ex))
	})

	t.Run("conflicting redeclaration fails", func(t *testing.T) {
		table := NewBindingTable()

		require.NoError(t, table.DeclareExchange(Exchange{Name: "orders", Type: Direct}))
		err := table.DeclareExchange(Exchange{Name: "orders", Type: Fanout})

		assert.ErrorIs(t, err, contracts.ErrDeclarationMismatch)
	})
}

func TestBind(t *testing.T) {
	t.Run("binding to unknown exchange fails", func(t *testing.T) {
		table := NewBindingTable()

		err := table.Bind(Binding{Exchange: "missing", Queue: "q", Pattern: "k"})

		assert.ErrorIs(t, err, contracts.ErrUnknownExchange)
	})

	t.Run("binding to the default exchange fails", func(t *testing.T) {
		table := NewBindingTable()

		err := table.Bind(Binding{Exchange: "", Queue: "q", Pattern: "k"})

		assert.Error(t, err)
	})

	t.Run("invalid topic pattern fails at bind time", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "topics", Type: Topic}))

		err := table.Bind(Binding{Exchange: "topics", Queue: "q", Pattern: "order.cre*"})

		assert.ErrorIs(t, err, contracts.ErrInvalidPattern)
	})

	t.Run("invalid x-match fails at bind time", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "hdrs", Type: Headers}))

		err := table.Bind(Binding{Exchange: "hdrs", Queue: "q", Arguments: amqp.Table{HeaderMatchKey: "some"}})

		assert.ErrorIs(t, err, contracts.ErrInvalidPattern)
	})

	t.Run("duplicate binding is a no-op", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "fan", Type: Fanout}))
		b := Binding{Exchange: "fan", Queue: "q1"}

		require.NoError(t, table.Bind(b))
		require.NoError(t, table.Bind(b))

		targets, err := table.Route("fan", "ignored", nil)
		require.NoError(t, err)
		assert.Len(t, targets, 1)
	})

	t.Run("same queue may bind with distinct header predicates", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "hdrs", Type: Headers}))
		require.NoError(t, table.Bind(Binding{
			Exchange:  "hdrs",
			Queue:     "docs",
			Arguments: amqp.Table{HeaderMatchKey: "all", "format": "pdf"},
		}))
		require.NoError(t, table.Bind(Binding{
			Exchange:  "hdrs",
			Queue:     "docs",
			Arguments: amqp.Table{HeaderMatchKey: "all", "format": "zip"},
		}))

		targets, err := table.Route("hdrs", "", amqp.Table{"format": "zip"})
		require.NoError(t, err)
		assert.Equal(t, []string{"docs"}, targets)

		targets, err = table.Route("hdrs", "", amqp.Table{"format": "pdf"})
		require.NoError(t, err)
		assert.Equal(t, []string{"docs"}, targets)
	})
}

func TestRoute(t *testing.T) {
	t.Run("default exchange routes key as queue name", func(t *testing.T) {
		table := NewBindingTable()

		targets, err := table.Route("", "test.q", nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"test.q"}, targets)
	})

	t.Run("unknown exchange is an error", func(t *testing.T) {
		table := NewBindingTable()

		_, err := table.Route("missing", "k", nil)

		assert.ErrorIs(t, err, contracts.ErrUnknownExchange)
	})

	t.Run("direct matches exact key only", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q1", Pattern: "alpha"}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q2", Pattern: "alpha"}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q3", Pattern: "beta"}))

		targets, err := table.Route("dx", "alpha", nil)

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"q1", "q2"}, targets)
	})

	t.Run("no matching binding routes nowhere", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q1", Pattern: "alpha"}))

		targets, err := table.Route("dx", "gamma", nil)

		require.NoError(t, err)
		assert.Empty(t, targets)
	})

	t.Run("fanout routes to every bound queue regardless of key", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "fan", Type: Fanout}))
		for _, q := range []string{"q1", "q2", "q3"} {
			require.NoError(t, table.Bind(Binding{Exchange: "fan", Queue: q}))
		}

		targets, err := table.Route("fan", "whatever", nil)

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"q1", "q2", "q3"}, targets)
	})

	t.Run("topic collapses duplicate queue targets", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "topics", Type: Topic}))
		require.NoError(t, table.Bind(Binding{Exchange: "topics", Queue: "audit", Pattern: "order.#"}))
		require.NoError(t, table.Bind(Binding{Exchange: "topics", Queue: "audit", Pattern: "*.created"}))

		targets, err := table.Route("topics", "order.created", nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"audit"}, targets)
	})

	t.Run("headers exchange matches on message headers", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "hdrs", Type: Headers}))
		require.NoError(t, table.Bind(Binding{
			Exchange:  "hdrs",
			Queue:     "pdfs",
			Arguments: amqp.Table{HeaderMatchKey: "all", "format": "pdf"},
		}))

		targets, err := table.Route("hdrs", "ignored", amqp.Table{"format": "pdf"})
		require.NoError(t, err)
		assert.Equal(t, []string{"pdfs"}, targets)

		targets, err = table.Route("hdrs", "ignored", amqp.Table{"format": "zip"})
		require.NoError(t, err)
		assert.Empty(t, targets)
	})
}

func TestUnbindAndRemoveQueue(t *testing.T) {
	t.Run("unbind removes a single binding", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q1", Pattern: "k"}))

		require.NoError(t, table.Unbind(Binding{Exchange: "dx", Queue: "q1", Pattern: "k"}))

		targets, err := table.Route("dx", "k", nil)
		require.NoError(t, err)
		assert.Empty(t, targets)
	})

	t.Run("unbind removes only the matching header predicate", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "hdrs", Type: Headers}))
		pdf := Binding{Exchange: "hdrs", Queue: "docs", Arguments: amqp.Table{HeaderMatchKey: "all", "format": "pdf"}}
		zip := Binding{Exchange: "hdrs", Queue: "docs", Arguments: amqp.Table{HeaderMatchKey: "all", "format": "zip"}}
		require.NoError(t, table.Bind(pdf))
		require.NoError(t, table.Bind(zip))

		require.NoError(t, table.Unbind(pdf))

		targets, err := table.Route("hdrs", "", amqp.Table{"format": "pdf"})
		require.NoError(t, err)
		assert.Empty(t, targets)

		targets, err = table.Route("hdrs", "", amqp.Table{"format": "zip"})
		require.NoError(t, err)
		assert.Equal(t, []string{"docs"}, targets)
	})

	t.Run("unbind of missing binding fails", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))

		assert.Error(t, table.Unbind(Binding{Exchange: "dx", Queue: "q1", Pattern: "k"}))
	})

	t.Run("RemoveQueue drops bindings across exchanges", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))
		require.NoError(t, table.DeclareExchange(Exchange{Name: "fan", Type: Fanout}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "gone", Pattern: "k"}))
		require.NoError(t, table.Bind(Binding{Exchange: "fan", Queue: "gone"}))
		require.NoError(t, table.Bind(Binding{Exchange: "fan", Queue: "kept"}))

		table.RemoveQueue("gone")

		targets, err := table.Route("dx", "k", nil)
		require.NoError(t, err)
		assert.Empty(t, targets)

		targets, err = table.Route("fan", "", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"kept"}, targets)
	})

	t.Run("DeleteExchange removes exchange and bindings", func(t *testing.T) {
		table := NewBindingTable()
		require.NoError(t, table.DeclareExchange(Exchange{Name: "dx", Type: Direct}))
		require.NoError(t, table.Bind(Binding{Exchange: "dx", Queue: "q", Pattern: "k"}))

		require.NoError(t, table.DeleteExchange("dx"))

		_, err := table.Route("dx", "k", nil)
		assert.ErrorIs(t, err, contracts.ErrUnknownExchange)
		assert.Error(t, table.DeleteExchange("dx"))
	})
}
