package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// InMemoryBus dispatches synchronously to subscribed handlers. Handler
// failures are logged and returned joined; a panicking handler is recovered.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

func NewInMemoryBus(logger *zap.Logger) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (b *InMemoryBus) Subscribe(handler Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, eventType := range eventTypes {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, event := range events {
		b.mu.RLock()
		handlers := append([]Handler(nil), b.handlers[event.Type]...)
		b.mu.RUnlock()

		for _, handler := range handlers {
			if err := dispatch(ctx, handler, event); err != nil {
				b.logger.Warn("event handler failed",
					zap.String("event_type", event.Type),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func dispatch(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", event.Type, r)
		}
	}()
	return handler.Handle(ctx, event)
}
