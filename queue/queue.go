package queue

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/burrowmq/burrow-go/contracts"
)

// DeadLetterer receives messages removed from a queue for a dead-letter
// cause: TTL expiry, drop-head eviction, rejection without requeue, or an
// exhausted delivery limit.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, msg *contracts.Message, originQueue, reason string)
}

// EnqueueResult reports the outcome of an enqueue.
type EnqueueResult int

const (
	// Accepted means the message was stored on the queue.
	Accepted EnqueueResult = iota

	// Rejected means the reject-publish overflow policy refused the
	// message, or the queue is closed.
	Rejected
)

// Delivery is a message handed to a consumer together with the handle used
// to acknowledge it.
type Delivery struct {
	Message       *contracts.Message
	Tag           uint64
	ConsumerTag   string
	Queue         string
	Redelivered   bool
	DeliveryCount int
}

// entry wraps a message while it lives on the queue. The expiry is absolute,
// fixed at enqueue time, and survives requeues.
type entry struct {
	msg           *contracts.Message
	expiry        time.Time
	deliveryCount int
}

type unackedEntry struct {
	e           *entry
	consumerTag string
}

type deadItem struct {
	msg    *contracts.Message
	reason string
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Depth        int
	Unacked      int
	Published    int64
	Delivered    int64
	Redelivered  int64
	Acked        int64
	DeadLettered int64
	Rejected     int64
	Expired      int64
}

// Queue is an ordered, bounded message store with TTL, overflow policy and
// dead-letter routing. Every mutation of the message sequence happens under
// a single per-queue lock; queues never share locks with each other or with
// the binding table.
type Queue struct {
	name string
	opts Options

	mu      sync.Mutex
	ready   *list.List // of *entry, FIFO
	unacked map[uint64]*unackedEntry
	nextTag uint64
	closed  bool
	stats   Stats

	readyCh chan struct{}
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue and starts its expiry sweeper.
func New(name string, options ...Option) *Queue {
	opts := Options{
		Overflow:      OverflowDropHead,
		SweepInterval: DefaultSweepInterval,
		Logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		name:    name,
		opts:    opts,
		ready:   list.New(),
		unacked: make(map[uint64]*unackedEntry),
		readyCh: make(chan struct{}, 1),
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	if opts.SweepInterval >= 0 {
		q.wg.Add(1)
		go q.sweepLoop()
	}

	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Durable reports whether the queue was declared durable.
func (q *Queue) Durable() bool {
	return q.opts.Durable
}

// DeadLetterTarget returns the configured dead-letter exchange and routing
// key, if any.
func (q *Queue) DeadLetterTarget() (exchange, routingKey string, ok bool) {
	if q.opts.DeadLetterExchange == "" && q.opts.DeadLetterRoutingKey == "" {
		return "", "", false
	}
	return q.opts.DeadLetterExchange, q.opts.DeadLetterRoutingKey, true
}

// Ready returns a channel that receives a signal whenever a message becomes
// ready for delivery. The channel carries edge notifications, not one token
// per message; consumers drain the queue after each signal.
func (q *Queue) Ready() <-chan struct{} {
	return q.readyCh
}

// Enqueue appends a message. When the queue is at max length the overflow
// policy decides: reject-publish refuses the message, drop-head evicts the
// oldest ready message and dead-letters it.
func (q *Queue) Enqueue(ctx context.Context, msg *contracts.Message) (EnqueueResult, error) {
	var dead []deadItem

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Rejected, contracts.ErrQueueClosed
	}

	if q.opts.MaxLength > 0 && q.ready.Len() >= q.opts.MaxLength {
		if q.opts.Overflow == OverflowRejectPublish {
			q.stats.Rejected++
			q.mu.Unlock()
			return Rejected, nil
		}
		for q.opts.MaxLength > 0 && q.ready.Len() >= q.opts.MaxLength {
			evicted := q.ready.Remove(q.ready.Front()).(*entry)
			q.stats.DeadLettered++
			dead = append(dead, deadItem{msg: evicted.msg, reason: contracts.ReasonMaxLen})
		}
	}

	expiry := msg.ExpiresAt
	if q.opts.MessageTTL > 0 {
		queueExpiry := time.Now().Add(q.opts.MessageTTL)
		if expiry.IsZero() || queueExpiry.Before(expiry) {
			expiry = queueExpiry
		}
	}

	q.ready.PushBack(&entry{msg: msg, expiry: expiry})
	q.stats.Published++
	q.mu.Unlock()

	q.deadLetterAll(ctx, dead)
	q.signal()
	return Accepted, nil
}

// Dequeue removes the next ready message and records it as unacknowledged
// under the consumer tag. Expired messages ahead of it are removed and
// dead-lettered first. Returns false when no ready message is available.
func (q *Queue) Dequeue(ctx context.Context, consumerTag string) (*Delivery, bool) {
	now := time.Now()
	var dead []deadItem

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, false
	}

	var next *entry
	for front := q.ready.Front(); front != nil; front = q.ready.Front() {
		e := front.Value.(*entry)
		if !e.expiry.IsZero() && !now.Before(e.expiry) {
			q.ready.Remove(front)
			q.stats.Expired++
			q.stats.DeadLettered++
			dead = append(dead, deadItem{msg: e.msg, reason: contracts.ReasonExpired})
			continue
		}
		q.ready.Remove(front)
		next = e
		break
	}

	var delivery *Delivery
	if next != nil {
		next.deliveryCount++
		q.nextTag++
		tag := q.nextTag
		q.unacked[tag] = &unackedEntry{e: next, consumerTag: consumerTag}
		q.stats.Delivered++
		if next.deliveryCount > 1 {
			q.stats.Redelivered++
		}
		delivery = &Delivery{
			Message:       next.msg,
			Tag:           tag,
			ConsumerTag:   consumerTag,
			Queue:         q.name,
			Redelivered:   next.deliveryCount > 1,
			DeliveryCount: next.deliveryCount,
		}
	}
	q.mu.Unlock()

	q.deadLetterAll(ctx, dead)
	return delivery, delivery != nil
}

// Ack removes a delivered message permanently.
func (q *Queue) Ack(tag uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.unacked[tag]; !ok {
		return contracts.ErrUnknownDeliveryTag
	}
	delete(q.unacked, tag)
	q.stats.Acked++
	return nil
}

// Nack handles a negative acknowledgment. With requeue the message returns
// to the tail of the ready sequence, unless its delivery limit is exhausted,
// in which case it is dead-lettered. Without requeue it is dead-lettered
// with reason rejected.
func (q *Queue) Nack(ctx context.Context, tag uint64, requeue bool) error {
	var dead []deadItem

	q.mu.Lock()
	ua, ok := q.unacked[tag]
	if !ok {
		q.mu.Unlock()
		return contracts.ErrUnknownDeliveryTag
	}
	delete(q.unacked, tag)

	requeued := false
	switch {
	case !requeue:
		q.stats.DeadLettered++
		dead = append(dead, deadItem{msg: ua.e.msg, reason: contracts.ReasonRejected})
	case q.opts.DeliveryLimit > 0 && ua.e.deliveryCount > q.opts.DeliveryLimit:
		q.stats.DeadLettered++
		dead = append(dead, deadItem{msg: ua.e.msg, reason: contracts.ReasonDeliveryLimit})
	default:
		q.ready.PushBack(ua.e)
		requeued = true
	}
	q.mu.Unlock()

	q.deadLetterAll(ctx, dead)
	if requeued {
		q.signal()
	}
	return nil
}

// RequeueAll returns every unacknowledged message held by the consumer to
// the ready sequence, in delivery order. Used when a consumer disconnects.
// Messages past their delivery limit are dead-lettered instead. Returns the
// number of messages requeued.
func (q *Queue) RequeueAll(ctx context.Context, consumerTag string) int {
	var dead []deadItem

	q.mu.Lock()
	tags := make([]uint64, 0, len(q.unacked))
	for tag, ua := range q.unacked {
		if ua.consumerTag == consumerTag {
			tags = append(tags, tag)
		}
	}
	// Delivery tags are monotonic; sorting restores delivery order.
	for i := 1; i < len(tags); i++ {
		for j := i; j > 0 && tags[j] < tags[j-1]; j-- {
			tags[j], tags[j-1] = tags[j-1], tags[j]
		}
	}

	requeued := 0
	for _, tag := range tags {
		ua := q.unacked[tag]
		delete(q.unacked, tag)
		if q.opts.DeliveryLimit > 0 && ua.e.deliveryCount > q.opts.DeliveryLimit {
			q.stats.DeadLettered++
			dead = append(dead, deadItem{msg: ua.e.msg, reason: contracts.ReasonDeliveryLimit})
			continue
		}
		q.ready.PushBack(ua.e)
		requeued++
	}
	q.mu.Unlock()

	q.deadLetterAll(ctx, dead)
	if requeued > 0 {
		q.signal()
	}
	return requeued
}

// Purge drops all ready messages without dead-lettering them and returns the
// number removed. Unacknowledged messages are untouched.
func (q *Queue) Purge() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.ready.Len()
	q.ready.Init()
	return n
}

// Len returns the number of ready messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len()
}

// UnackedLen returns the number of delivered-but-unacknowledged messages.
func (q *Queue) UnackedLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.unacked)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := q.stats
	s.Depth = q.ready.Len()
	s.Unacked = len(q.unacked)
	return s
}

// Close stops the sweeper and marks the queue closed. Further enqueues are
// rejected; remaining messages are discarded.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.ready.Init()
	q.unacked = make(map[uint64]*unackedEntry)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

// sweepLoop periodically removes expired messages. It takes the same queue
// lock as the message operations, so the FIFO and max-length invariants hold
// throughout.
func (q *Queue) sweepLoop() {
	defer q.wg.Done()

	interval := q.opts.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep removes every expired ready message and hands it to the dead-letter
// collaborator.
func (q *Queue) sweep() {
	now := time.Now()
	var dead []deadItem

	q.mu.Lock()
	for el := q.ready.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry)
		if !e.expiry.IsZero() && !now.Before(e.expiry) {
			q.ready.Remove(el)
			q.stats.Expired++
			q.stats.DeadLettered++
			dead = append(dead, deadItem{msg: e.msg, reason: contracts.ReasonExpired})
		}
		el = next
	}
	q.mu.Unlock()

	q.deadLetterAll(q.ctx, dead)
}

// deadLetterAll hands removed messages to the dead-letter collaborator. It
// runs outside the queue lock: the republish may legally target this same
// queue.
func (q *Queue) deadLetterAll(ctx context.Context, items []deadItem) {
	for _, item := range items {
		if q.opts.DeadLetterer == nil {
			q.logger.Debug("dropping message without dead-letter handler",
				"queue", q.name,
				"messageId", item.msg.ID,
				"reason", item.reason,
			)
			continue
		}
		q.opts.DeadLetterer.DeadLetter(ctx, item.msg, q.name, item.reason)
	}
}

func (q *Queue) signal() {
	select {
	case q.readyCh <- struct{}{}:
	default:
	}
}
