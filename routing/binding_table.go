package routing

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/burrowmq/burrow-go/contracts"
	mapset "github.com/deckarep/golang-set/v2"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Binding links an exchange to a queue under a routing-key pattern. For
// headers exchanges the Arguments table carries the match predicate and the
// pattern is ignored.
type Binding struct {
	Exchange  string
	Queue     string
	Pattern   string
	Arguments amqp.Table
}

// equal reports whether two bindings are the same binding. The arguments
// table is part of the identity: on a headers exchange the pattern is empty
// and only the predicate distinguishes bindings.
func (b Binding) equal(other Binding) bool {
	return b.Exchange == other.Exchange &&
		b.Queue == other.Queue &&
		b.Pattern == other.Pattern &&
		argumentsEqual(b.Arguments, other.Arguments)
}

func argumentsEqual(a, b amqp.Table) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			return false
		}
	}
	return true
}

// BindingTable holds the declared exchanges and their bindings. It has its
// own lock, independent of any queue lock: topology changes and message flow
// never contend with each other.
type BindingTable struct {
	mu        sync.RWMutex
	exchanges map[string]Exchange
	bindings  map[string][]Binding // exchange name -> bindings
	logger    *slog.Logger
}

// BindingTableOption configures the BindingTable.
type BindingTableOption func(*BindingTable)

// WithTableLogger sets the logger.
func WithTableLogger(logger *slog.Logger) BindingTableOption {
	return func(t *BindingTable) {
		t.logger = logger
	}
}

// NewBindingTable creates an empty binding table.
func NewBindingTable(options ...BindingTableOption) *BindingTable {
	t := &BindingTable{
		exchanges: make(map[string]Exchange),
		bindings:  make(map[string][]Binding),
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// DeclareExchange registers an exchange. Redeclaring with identical
// properties is a no-op; redeclaring with different properties fails.
func (t *BindingTable) DeclareExchange(ex Exchange) error {
	if ex.Name == "" {
		return fmt.Errorf("exchange name cannot be empty: the default exchange is implicit")
	}
	if _, err := ParseExchangeType(string(ex.Type)); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.exchanges[ex.Name]; ok {
		if existing != ex {
			return fmt.Errorf("%w: exchange %s already declared as %s", contracts.ErrDeclarationMismatch, ex.Name, existing.Type)
		}
		return nil
	}

	t.exchanges[ex.Name] = ex
	t.logger.Info("declared exchange", "exchange", ex.Name, "type", ex.Type, "durable", ex.Durable)
	return nil
}

// DeleteExchange removes an exchange and all its bindings.
func (t *BindingTable) DeleteExchange(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.exchanges[name]; !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownExchange, name)
	}
	delete(t.exchanges, name)
	delete(t.bindings, name)
	t.logger.Info("deleted exchange", "exchange", name)
	return nil
}

// GetExchange looks up a declared exchange by name.
func (t *BindingTable) GetExchange(name string) (Exchange, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ex, ok := t.exchanges[name]
	return ex, ok
}

// Bind adds a binding. Patterns are validated against the exchange type at
// declaration time; an identical existing binding is a no-op.
func (t *BindingTable) Bind(b Binding) error {
	if b.Exchange == "" {
		return fmt.Errorf("cannot bind to the default exchange")
	}
	if b.Queue == "" {
		return fmt.Errorf("queue name cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ex, ok := t.exchanges[b.Exchange]
	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownExchange, b.Exchange)
	}

	switch ex.Type {
	case Topic:
		if err := ValidateTopicPattern(b.Pattern); err != nil {
			return err
		}
	case Headers:
		if err := ValidateHeaderArguments(b.Arguments); err != nil {
			return err
		}
	}

	for _, existing := range t.bindings[b.Exchange] {
		if existing.equal(b) {
			return nil
		}
	}

	t.bindings[b.Exchange] = append(t.bindings[b.Exchange], b)
	t.logger.Info("bound queue",
		"exchange", b.Exchange,
		"queue", b.Queue,
		"pattern", b.Pattern,
	)
	return nil
}

// Unbind removes a binding matching exchange, queue and pattern.
func (t *BindingTable) Unbind(b Binding) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bindings := t.bindings[b.Exchange]
	for i, existing := range bindings {
		if existing.equal(b) {
			t.bindings[b.Exchange] = append(bindings[:i], bindings[i+1:]...)
			t.logger.Info("unbound queue", "exchange", b.Exchange, "queue", b.Queue, "pattern", b.Pattern)
			return nil
		}
	}
	return fmt.Errorf("binding not found: %s -> %s (%s)", b.Exchange, b.Queue, b.Pattern)
}

// RemoveQueue drops every binding targeting the queue, across all exchanges.
// Called when a queue is deleted.
func (t *BindingTable) RemoveQueue(queue string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for exchange, bindings := range t.bindings {
		kept := bindings[:0]
		for _, b := range bindings {
			if b.Queue != queue {
				kept = append(kept, b)
			}
		}
		t.bindings[exchange] = kept
	}
}

// Route resolves the destination queues for a message published to the named
// exchange. The empty exchange name is the default exchange: the routing key
// is treated as a queue name directly. A publish to an undeclared exchange
// is an error; a declared exchange with no matching binding routes nowhere.
func (t *BindingTable) Route(exchange, routingKey string, headers amqp.Table) ([]string, error) {
	if exchange == "" {
		return []string{routingKey}, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	ex, ok := t.exchanges[exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownExchange, exchange)
	}

	// Multiple bindings may target the same queue; a message is delivered
	// to each queue at most once.
	targets := mapset.NewThreadUnsafeSet[string]()
	for _, b := range t.bindings[exchange] {
		switch ex.Type {
		case Direct:
			if b.Pattern == routingKey {
				targets.Add(b.Queue)
			}
		case Topic:
			if MatchTopic(b.Pattern, routingKey) {
				targets.Add(b.Queue)
			}
		case Fanout:
			targets.Add(b.Queue)
		case Headers:
			if MatchHeaders(b.Arguments, headers) {
				targets.Add(b.Queue)
			}
		}
	}

	return targets.ToSlice(), nil
}
