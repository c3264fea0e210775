package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/burrowmq/burrow-go/queue"
)

// Middleware processes deliveries before they reach the final handler.
type Middleware interface {
	// Process handles a delivery and calls the next handler in the chain.
	Process(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error

	// Name returns the middleware name for logging and debugging.
	Name() string
}

// MiddlewareFunc is a function adapter for Middleware.
type MiddlewareFunc struct {
	name string
	fn   func(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error
}

// NewMiddlewareFunc creates a function-based middleware.
func NewMiddlewareFunc(name string, fn func(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error) *MiddlewareFunc {
	return &MiddlewareFunc{name: name, fn: fn}
}

// Process implements Middleware.
func (m *MiddlewareFunc) Process(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error {
	return m.fn(ctx, delivery, next)
}

// Name implements Middleware.
func (m *MiddlewareFunc) Name() string {
	return m.name
}

// MiddlewareChain composes middleware around a final handler. The first
// middleware added is the outermost.
type MiddlewareChain struct {
	middleware []Middleware
}

// NewMiddlewareChain creates an empty chain.
func NewMiddlewareChain(middleware ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{middleware: middleware}
}

// Add appends middleware to the chain.
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	c.middleware = append(c.middleware, m)
	return c
}

// Then wraps the final handler in the chain and returns the composed handler,
// ready to pass to Subscribe.
func (c *MiddlewareChain) Then(final ConsumerHandler) ConsumerHandler {
	handler := final
	for i := len(c.middleware) - 1; i >= 0; i-- {
		m := c.middleware[i]
		next := handler
		handler = ConsumerHandlerFunc(func(ctx context.Context, delivery *queue.Delivery) error {
			return m.Process(ctx, delivery, next)
		})
	}
	return handler
}

// LoggingMiddleware logs every delivery with its processing duration.
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates a logging middleware.
func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{logger: logger}
}

// Process implements Middleware.
func (m *LoggingMiddleware) Process(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error {
	start := time.Now()
	err := next.Handle(ctx, delivery)
	duration := time.Since(start)

	if err != nil {
		m.logger.Error("message processing failed",
			"queue", delivery.Queue,
			"messageId", delivery.Message.ID,
			"deliveryCount", delivery.DeliveryCount,
			"duration", duration,
			"error", err,
		)
		return err
	}

	m.logger.Debug("message processed",
		"queue", delivery.Queue,
		"messageId", delivery.Message.ID,
		"duration", duration,
	)
	return nil
}

// Name implements Middleware.
func (m *LoggingMiddleware) Name() string {
	return "LoggingMiddleware"
}

// RecoveryMiddleware converts handler panics into errors, so a panicking
// consumer nacks its message instead of crashing the process.
type RecoveryMiddleware struct {
	logger *slog.Logger
}

// NewRecoveryMiddleware creates a recovery middleware.
func NewRecoveryMiddleware(logger *slog.Logger) *RecoveryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryMiddleware{logger: logger}
}

// Process implements Middleware.
func (m *RecoveryMiddleware) Process(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("handler panic recovered",
				"queue", delivery.Queue,
				"messageId", delivery.Message.ID,
				"panic", r,
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return next.Handle(ctx, delivery)
}

// Name implements Middleware.
func (m *RecoveryMiddleware) Name() string {
	return "RecoveryMiddleware"
}

// TimeoutMiddleware bounds handler execution time.
type TimeoutMiddleware struct {
	timeout time.Duration
}

// NewTimeoutMiddleware creates a timeout middleware.
func NewTimeoutMiddleware(timeout time.Duration) *TimeoutMiddleware {
	return &TimeoutMiddleware{timeout: timeout}
}

// Process implements Middleware.
func (m *TimeoutMiddleware) Process(ctx context.Context, delivery *queue.Delivery, next ConsumerHandler) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- next.Handle(timeoutCtx, delivery)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		return fmt.Errorf("processing timeout after %v for message %s", m.timeout, delivery.Message.ID)
	}
}

// Name implements Middleware.
func (m *TimeoutMiddleware) Name() string {
	return "TimeoutMiddleware"
}
