package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/burrowmq/burrow-go/contracts"
	"github.com/burrowmq/burrow-go/queue"
	"github.com/google/uuid"
)

// ConsumerHandler processes a delivered message. Returning nil acknowledges
// the message; returning an error hands the decision to the ErrorHandler.
type ConsumerHandler interface {
	Handle(ctx context.Context, delivery *queue.Delivery) error
}

// ConsumerHandlerFunc is a function adapter for ConsumerHandler.
type ConsumerHandlerFunc func(ctx context.Context, delivery *queue.Delivery) error

// Handle implements ConsumerHandler.
func (f ConsumerHandlerFunc) Handle(ctx context.Context, delivery *queue.Delivery) error {
	return f(ctx, delivery)
}

// ErrorAction determines what to do with failed messages.
type ErrorAction int

const (
	// Acknowledge discards the message despite the failure.
	Acknowledge ErrorAction = iota

	// Retry requeues the message for redelivery.
	Retry

	// Reject nacks without requeue, sending the message to the dead-letter
	// exchange.
	Reject
)

// ErrorHandler decides the fate of a message whose handler failed.
type ErrorHandler interface {
	HandleError(ctx context.Context, delivery *queue.Delivery, err error) ErrorAction
}

// ErrorHandlerFunc is a function adapter for ErrorHandler.
type ErrorHandlerFunc func(ctx context.Context, delivery *queue.Delivery, err error) ErrorAction

// HandleError implements ErrorHandler.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, delivery *queue.Delivery, err error) ErrorAction {
	return f(ctx, delivery, err)
}

// DefaultErrorHandler logs the failure and rejects the message.
type DefaultErrorHandler struct {
	Logger *slog.Logger
}

// HandleError implements ErrorHandler.
func (h *DefaultErrorHandler) HandleError(ctx context.Context, delivery *queue.Delivery, err error) ErrorAction {
	if h.Logger != nil {
		h.Logger.Error("message processing failed",
			"queue", delivery.Queue,
			"messageId", delivery.Message.ID,
			"deliveryCount", delivery.DeliveryCount,
			"error", err,
		)
	}
	return Reject
}

// SubscriptionOptions configures a consumer registration.
type SubscriptionOptions struct {
	// ConsumerTag identifies the consumer on its queue. Generated when
	// empty.
	ConsumerTag string

	// PrefetchCount bounds unacknowledged messages outstanding to this
	// consumer. Defaults to 10 when unset; values below one mean unlimited.
	PrefetchCount int
}

// SubscriptionOption configures subscription behavior.
type SubscriptionOption func(*SubscriptionOptions)

// WithConsumerTag sets the consumer tag.
func WithConsumerTag(tag string) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.ConsumerTag = tag
	}
}

// WithPrefetchCount sets the prefetch count.
func WithPrefetchCount(count int) SubscriptionOption {
	return func(opts *SubscriptionOptions) {
		opts.PrefetchCount = count
	}
}

type consumer struct {
	tag         string
	prefetch    int
	handler     ConsumerHandler
	outstanding int
}

func (c *consumer) hasBudget() bool {
	return c.prefetch < 1 || c.outstanding < c.prefetch
}

// QueueDispatcher pulls ready messages off one queue and distributes them to
// registered consumers under their prefetch limits. Distribution prefers the
// consumer with the fewest outstanding messages, breaking ties round-robin,
// which approximates even spread without starving anyone.
type QueueDispatcher struct {
	queue        *queue.Queue
	emitter      EventEmitter
	errorHandler ErrorHandler
	logger       *slog.Logger

	mu        sync.Mutex
	consumers []*consumer
	rr        int

	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// DispatcherOption configures the QueueDispatcher.
type DispatcherOption func(*QueueDispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *QueueDispatcher) {
		d.logger = logger
	}
}

// WithDispatcherEmitter sets the event emitter.
func WithDispatcherEmitter(emitter EventEmitter) DispatcherOption {
	return func(d *QueueDispatcher) {
		d.emitter = emitter
	}
}

// WithDispatcherErrorHandler sets the error handler.
func WithDispatcherErrorHandler(handler ErrorHandler) DispatcherOption {
	return func(d *QueueDispatcher) {
		d.errorHandler = handler
	}
}

// NewQueueDispatcher creates a dispatcher bound to a queue. Call Start to
// begin delivering.
func NewQueueDispatcher(q *queue.Queue, options ...DispatcherOption) *QueueDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &QueueDispatcher{
		queue:   q,
		emitter: &NoOpEventEmitter{},
		logger:  slog.Default(),
		kick:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	for _, opt := range options {
		opt(d)
	}

	if d.errorHandler == nil {
		d.errorHandler = &DefaultErrorHandler{Logger: d.logger}
	}

	return d
}

// Start launches the delivery loop. Safe to call once; further calls are
// no-ops.
func (d *QueueDispatcher) Start() {
	d.once.Do(func() {
		d.wg.Add(1)
		go d.loop()
	})
}

// Stop cancels delivery and waits for in-flight handlers to return.
// Unacknowledged messages stay on their queue's unacked set; the broker
// requeues or discards them as part of queue teardown.
func (d *QueueDispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Subscribe registers a consumer and returns its tag.
func (d *QueueDispatcher) Subscribe(handler ConsumerHandler, options ...SubscriptionOption) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	opts := SubscriptionOptions{
		PrefetchCount: 10,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.ConsumerTag == "" {
		opts.ConsumerTag = fmt.Sprintf("ctag-%s", uuid.New().String())
	}

	d.mu.Lock()
	for _, c := range d.consumers {
		if c.tag == opts.ConsumerTag {
			d.mu.Unlock()
			return "", fmt.Errorf("%w: %s", contracts.ErrConsumerExists, opts.ConsumerTag)
		}
	}
	d.consumers = append(d.consumers, &consumer{
		tag:      opts.ConsumerTag,
		prefetch: opts.PrefetchCount,
		handler:  handler,
	})
	d.mu.Unlock()

	d.logger.Info("registered consumer",
		"queue", d.queue.Name(),
		"consumerTag", opts.ConsumerTag,
		"prefetch", opts.PrefetchCount,
	)

	d.signal()
	return opts.ConsumerTag, nil
}

// Unsubscribe removes a consumer and requeues every message it had not yet
// acknowledged, so remaining consumers redeliver them.
func (d *QueueDispatcher) Unsubscribe(tag string) error {
	d.mu.Lock()
	found := false
	for i, c := range d.consumers {
		if c.tag == tag {
			d.consumers = append(d.consumers[:i], d.consumers[i+1:]...)
			found = true
			break
		}
	}
	d.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownConsumer, tag)
	}

	requeued := d.queue.RequeueAll(d.ctx, tag)
	d.logger.Info("removed consumer",
		"queue", d.queue.Name(),
		"consumerTag", tag,
		"requeued", requeued,
	)

	d.signal()
	return nil
}

// ConsumerCount returns the number of registered consumers.
func (d *QueueDispatcher) ConsumerCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.consumers)
}

func (d *QueueDispatcher) loop() {
	defer d.wg.Done()

	for {
		d.dispatch()

		select {
		case <-d.ctx.Done():
			return
		case <-d.queue.Ready():
		case <-d.kick:
		}
	}
}

// dispatch drains the queue while a consumer has prefetch budget and a ready
// message exists. The budget is reserved before the dequeue so the prefetch
// invariant holds even while the handler runs concurrently.
func (d *QueueDispatcher) dispatch() {
	for {
		c := d.reserve()
		if c == nil {
			return
		}

		delivery, ok := d.queue.Dequeue(d.ctx, c.tag)
		if !ok {
			d.release(c)
			return
		}

		d.wg.Add(1)
		go d.deliver(c, delivery)
	}
}

// reserve picks the consumer with the fewest outstanding messages among
// those with remaining budget, breaking ties in round-robin order, and
// charges one delivery against it.
func (d *QueueDispatcher) reserve() *consumer {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.consumers) == 0 {
		return nil
	}

	var chosen *consumer
	for i := 0; i < len(d.consumers); i++ {
		c := d.consumers[(d.rr+i)%len(d.consumers)]
		if !c.hasBudget() {
			continue
		}
		if chosen == nil || c.outstanding < chosen.outstanding {
			chosen = c
		}
	}
	if chosen == nil {
		return nil
	}

	d.rr = (d.rr + 1) % len(d.consumers)
	chosen.outstanding++
	return chosen
}

func (d *QueueDispatcher) release(c *consumer) {
	d.mu.Lock()
	c.outstanding--
	d.mu.Unlock()
}

func (d *QueueDispatcher) deliver(c *consumer, delivery *queue.Delivery) {
	defer d.wg.Done()

	err := c.handler.Handle(d.ctx, delivery)
	if err == nil {
		d.finish(delivery, d.queue.Ack(delivery.Tag))
	} else {
		switch d.errorHandler.HandleError(d.ctx, delivery, err) {
		case Acknowledge:
			d.finish(delivery, d.queue.Ack(delivery.Tag))
		case Retry:
			d.finish(delivery, d.queue.Nack(d.ctx, delivery.Tag, true))
		case Reject:
			d.emitter.RecordConsumerRejection(delivery.Queue, delivery.Message.ID)
			d.finish(delivery, d.queue.Nack(d.ctx, delivery.Tag, false))
		}
	}

	d.release(c)
	d.signal()
}

// finish reports acknowledgment failures. A tag can legitimately vanish when
// the consumer was unsubscribed mid-flight and its deliveries requeued.
func (d *QueueDispatcher) finish(delivery *queue.Delivery, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, contracts.ErrUnknownDeliveryTag) {
		d.logger.Debug("delivery settled after requeue",
			"queue", delivery.Queue,
			"messageId", delivery.Message.ID,
		)
		return
	}
	d.logger.Error("failed to settle delivery",
		"queue", delivery.Queue,
		"messageId", delivery.Message.ID,
		"error", err,
	)
}

func (d *QueueDispatcher) signal() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}
