// Copyright 2025 Burrow Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package burrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/burrowmq/burrow-go/contracts"
	"github.com/burrowmq/burrow-go/internal/deadletter"
	"github.com/burrowmq/burrow-go/messaging"
	"github.com/burrowmq/burrow-go/queue"
	"github.com/burrowmq/burrow-go/routing"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the main entry point: an embedded message broker combining the
// binding table, queues, per-queue dispatchers, the publisher and the
// dead-letter router. All methods are safe for concurrent use.
type Broker struct {
	table     *routing.BindingTable
	publisher *messaging.MessagePublisher
	dlx       *deadletter.Router
	emitter   messaging.EventEmitter
	logger    *slog.Logger

	errorHandler  messaging.ErrorHandler
	sweepInterval time.Duration
	sweepSet      bool

	mu     sync.RWMutex
	queues map[string]*brokerQueue
	closed bool
}

// brokerQueue pairs a queue with its dispatcher and the declaration it was
// created from, so redeclarations can be checked for equivalence.
type brokerQueue struct {
	q          *queue.Queue
	dispatcher *messaging.QueueDispatcher
	decl       QueueDeclaration
}

// BrokerOption configures the Broker.
type BrokerOption func(*Broker)

// WithLogger sets the logger used by the broker and every component it
// creates.
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithEventEmitter sets the event emitter. Default is a collecting emitter
// backing Stats.
func WithEventEmitter(emitter messaging.EventEmitter) BrokerOption {
	return func(b *Broker) {
		b.emitter = emitter
	}
}

// WithErrorHandler sets the error handler applied to every queue's consumers.
func WithErrorHandler(handler messaging.ErrorHandler) BrokerOption {
	return func(b *Broker) {
		b.errorHandler = handler
	}
}

// WithSweepInterval sets the expiry sweep interval applied to every queue
// the broker declares. Negative disables background sweeping.
func WithSweepInterval(interval time.Duration) BrokerOption {
	return func(b *Broker) {
		b.sweepInterval = interval
		b.sweepSet = true
	}
}

// NewBroker creates an empty broker. Declare exchanges and queues, bind them,
// then publish and subscribe.
func NewBroker(options ...BrokerOption) *Broker {
	b := &Broker{
		logger: slog.Default(),
		queues: make(map[string]*brokerQueue),
	}

	for _, opt := range options {
		opt(b)
	}

	if b.emitter == nil {
		b.emitter = messaging.NewCollectingEventEmitter()
	}

	b.table = routing.NewBindingTable(routing.WithTableLogger(b.logger))
	b.publisher = messaging.NewMessagePublisher(b.table, b,
		messaging.WithPublisherLogger(b.logger),
		messaging.WithPublisherEmitter(b.emitter),
	)
	b.dlx = deadletter.NewRouter(b.publisher, b,
		deadletter.WithRouterLogger(b.logger),
		deadletter.WithRouterEmitter(b.emitter),
	)

	return b
}

// ExchangeDeclaration describes an exchange to declare.
type ExchangeDeclaration struct {
	Name    string
	Type    string
	Durable bool
}

// QueueDeclaration describes a queue to declare.
type QueueDeclaration struct {
	Name          string
	Durable       bool
	MaxLength     int
	Overflow      queue.OverflowPolicy
	MessageTTL    time.Duration
	DeliveryLimit int

	// DeadLetterExchange and DeadLetterRoutingKey name the republish target
	// for messages removed from this queue for a dead-letter cause.
	DeadLetterExchange   string
	DeadLetterRoutingKey string
}

// BindingDeclaration describes a binding to create.
type BindingDeclaration struct {
	Exchange  string
	Queue     string
	Pattern   string
	Arguments amqp.Table
}

// Topology groups declarations so an application can set up its messaging
// infrastructure in one call.
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []BindingDeclaration
}

// DeclareTopology declares exchanges, then queues, then bindings. It stops at
// the first failure.
func (b *Broker) DeclareTopology(t Topology) error {
	for _, ex := range t.Exchanges {
		if err := b.DeclareExchange(ex); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", ex.Name, err)
		}
	}
	for _, q := range t.Queues {
		if err := b.DeclareQueue(q); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.Name, err)
		}
	}
	for _, bd := range t.Bindings {
		if err := b.Bind(bd); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", bd.Queue, bd.Exchange, err)
		}
	}
	return nil
}

// DeclareExchange registers an exchange. Redeclaring with identical
// properties is a no-op; redeclaring with different properties fails.
func (b *Broker) DeclareExchange(decl ExchangeDeclaration) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	exType, err := routing.ParseExchangeType(decl.Type)
	if err != nil {
		return err
	}
	return b.table.DeclareExchange(routing.Exchange{
		Name:    decl.Name,
		Type:    exType,
		Durable: decl.Durable,
	})
}

// DeclareQueue creates a queue and starts its dispatcher. Redeclaring with an
// identical declaration is a no-op; redeclaring with different properties
// fails.
func (b *Broker) DeclareQueue(decl QueueDeclaration) error {
	if decl.Name == "" {
		return fmt.Errorf("queue name cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return contracts.ErrBrokerClosed
	}

	if existing, ok := b.queues[decl.Name]; ok {
		if existing.decl != decl {
			return fmt.Errorf("%w: queue %s already declared with different properties",
				contracts.ErrDeclarationMismatch, decl.Name)
		}
		return nil
	}

	opts := []queue.Option{
		queue.WithDurable(decl.Durable),
		queue.WithMaxLength(decl.MaxLength),
		queue.WithMessageTTL(decl.MessageTTL),
		queue.WithDeliveryLimit(decl.DeliveryLimit),
		queue.WithDeadLetter(decl.DeadLetterExchange, decl.DeadLetterRoutingKey),
		queue.WithDeadLetterer(b.dlx),
		queue.WithQueueLogger(b.logger),
	}
	if decl.Overflow != "" {
		opts = append(opts, queue.WithOverflow(decl.Overflow))
	}
	if b.sweepSet {
		opts = append(opts, queue.WithSweepInterval(b.sweepInterval))
	}

	q := queue.New(decl.Name, opts...)

	dispatcherOpts := []messaging.DispatcherOption{
		messaging.WithDispatcherLogger(b.logger),
		messaging.WithDispatcherEmitter(b.emitter),
	}
	if b.errorHandler != nil {
		dispatcherOpts = append(dispatcherOpts, messaging.WithDispatcherErrorHandler(b.errorHandler))
	}
	dispatcher := messaging.NewQueueDispatcher(q, dispatcherOpts...)
	dispatcher.Start()

	b.queues[decl.Name] = &brokerQueue{q: q, dispatcher: dispatcher, decl: decl}
	b.logger.Info("declared queue",
		"queue", decl.Name,
		"durable", decl.Durable,
		"maxLength", decl.MaxLength,
		"deadLetterExchange", decl.DeadLetterExchange,
	)
	return nil
}

// DeleteQueue removes a queue, its bindings and its consumers. Remaining
// messages are discarded.
func (b *Broker) DeleteQueue(name string) error {
	b.mu.Lock()
	bq, ok := b.queues[name]
	if ok {
		delete(b.queues, name)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownQueue, name)
	}

	// Stop outside the broker lock: in-flight handlers may publish, which
	// reads the queue map.
	bq.dispatcher.Stop()
	b.table.RemoveQueue(name)
	if err := bq.q.Close(); err != nil {
		return err
	}

	b.logger.Info("deleted queue", "queue", name)
	return nil
}

// Bind creates a binding between an exchange and a queue. The queue must
// exist on this broker.
func (b *Broker) Bind(decl BindingDeclaration) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if _, ok := b.GetQueue(decl.Queue); !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownQueue, decl.Queue)
	}

	return b.table.Bind(routing.Binding{
		Exchange:  decl.Exchange,
		Queue:     decl.Queue,
		Pattern:   decl.Pattern,
		Arguments: decl.Arguments,
	})
}

// Unbind removes a binding.
func (b *Broker) Unbind(decl BindingDeclaration) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.table.Unbind(routing.Binding{
		Exchange:  decl.Exchange,
		Queue:     decl.Queue,
		Pattern:   decl.Pattern,
		Arguments: decl.Arguments,
	})
}

// Publish routes a message through the named exchange. The empty exchange
// name is the default exchange: the routing key addresses a queue directly.
func (b *Broker) Publish(ctx context.Context, exchange, routingKey string, body []byte, options ...messaging.PublishOption) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	return b.publisher.Publish(ctx, exchange, routingKey, body, options...)
}

// Subscribe registers a consumer on a queue and returns its consumer tag.
func (b *Broker) Subscribe(queueName string, handler messaging.ConsumerHandler, options ...messaging.SubscriptionOption) (string, error) {
	bq, err := b.brokerQueue(queueName)
	if err != nil {
		return "", err
	}
	return bq.dispatcher.Subscribe(handler, options...)
}

// Unsubscribe removes a consumer from a queue. Its unacknowledged messages
// are requeued for redelivery.
func (b *Broker) Unsubscribe(queueName, consumerTag string) error {
	bq, err := b.brokerQueue(queueName)
	if err != nil {
		return err
	}
	return bq.dispatcher.Unsubscribe(consumerTag)
}

// PurgeQueue drops all ready messages from a queue and returns the number
// removed. Unacknowledged messages are untouched.
func (b *Broker) PurgeQueue(name string) (int, error) {
	bq, err := b.brokerQueue(name)
	if err != nil {
		return 0, err
	}
	return bq.q.Purge(), nil
}

// QueueStats returns a snapshot of one queue's counters.
func (b *Broker) QueueStats(name string) (queue.Stats, error) {
	bq, err := b.brokerQueue(name)
	if err != nil {
		return queue.Stats{}, err
	}
	return bq.q.Stats(), nil
}

// Stats returns broker-wide event counters.
func (b *Broker) Stats() messaging.BrokerStats {
	return b.emitter.GetStats()
}

// GetQueue implements messaging.QueueProvider.
func (b *Broker) GetQueue(name string) (*queue.Queue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bq, ok := b.queues[name]
	if !ok {
		return nil, false
	}
	return bq.q, true
}

// DeadLetterTarget implements the dead-letter router's target lookup.
func (b *Broker) DeadLetterTarget(queueName string) (exchange, routingKey string, ok bool) {
	q, found := b.GetQueue(queueName)
	if !found {
		return "", "", false
	}
	return q.DeadLetterTarget()
}

// Close stops every dispatcher and queue. The broker rejects all operations
// afterwards.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	queues := make([]*brokerQueue, 0, len(b.queues))
	for _, bq := range b.queues {
		queues = append(queues, bq)
	}
	b.queues = make(map[string]*brokerQueue)
	b.mu.Unlock()

	for _, bq := range queues {
		bq.dispatcher.Stop()
	}
	for _, bq := range queues {
		if err := bq.q.Close(); err != nil {
			return err
		}
	}

	b.logger.Info("broker closed", "queues", len(queues))
	return nil
}

func (b *Broker) brokerQueue(name string) (*brokerQueue, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, contracts.ErrBrokerClosed
	}
	bq, ok := b.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownQueue, name)
	}
	return bq, nil
}

func (b *Broker) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return contracts.ErrBrokerClosed
	}
	return nil
}
