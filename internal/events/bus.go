package events

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes an event in-process. Handlers run on their own goroutine
// and must tolerate being called concurrently.
type Handler func(ctx context.Context, event interface{})

// Bus dispatches domain events to in-process handlers and external
// publisher sinks. Publishing is best-effort: the ledger transaction that
// produced the event has already committed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	sinks    []Publisher
	topics   map[EventType]string
	logger   *zap.Logger
}

// NewBus creates the event bus. topics maps each event type to its external
// topic name; events without a mapping are delivered in-process only.
func NewBus(logger *zap.Logger, topics map[EventType]string, sinks ...Publisher) *Bus {
	if topics == nil {
		topics = make(map[EventType]string)
	}
	return &Bus{
		handlers: make(map[EventType][]Handler),
		sinks:    sinks,
		topics:   topics,
		logger:   logger,
	}
}

// Subscribe registers an in-process handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber and sink. In-process
// handlers run asynchronously with panics contained; sink failures are
// logged and only reported when every sink failed.
func (b *Bus) Publish(ctx context.Context, eventType EventType, event interface{}) error {
	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		go func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked",
						zap.String("event_type", string(eventType)),
						zap.Any("panic", r),
					)
				}
			}()
			h(ctx, event)
		}()
	}

	topic, ok := b.topics[eventType]
	if !ok || len(b.sinks) == 0 {
		return nil
	}

	var lastErr error
	successCount := 0
	for i, sink := range b.sinks {
		if err := sink.PublishEvent(ctx, topic, event); err != nil {
			b.logger.Error("failed to publish event",
				zap.Int("sink_index", i),
				zap.String("event_type", string(eventType)),
				zap.String("topic", topic),
				zap.Error(err),
			)
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return fmt.Errorf("all sinks failed, last error: %w", lastErr)
	}
	return nil
}
