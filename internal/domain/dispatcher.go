package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
)

// EventHandler processes a domain event.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher fans account, settings and asset events out to subscribers
// such as the audit log. Delivery is synchronous and best effort: a failing
// handler does not stop the ones registered after it, and the caller's edit
// has already been committed when Dispatch runs.
type EventDispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
}

func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{handlers: make(map[EventType][]EventHandler)}
}

// Register subscribes handler to each of types.
func (d *EventDispatcher) Register(handler EventHandler, types ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range types {
		d.handlers[t] = append(d.handlers[t], handler)
	}
}

// Dispatch delivers event to its subscribers in registration order and
// returns every handler failure joined. A nil dispatcher drops the event.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	handlers := append([]EventHandler(nil), d.handlers[event.EventType]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("Domain event has no subscribers",
			zap.String("event_type", string(event.EventType)),
			zap.String("aggregate_id", event.AggregateID),
		)
		return nil
	}

	var errs []error
	for i, handle := range handlers {
		if err := handle(ctx, event); err != nil {
			logger.Error("Domain event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Int("handler", i),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event.EventType, i, err))
		}
	}
	return errors.Join(errs...)
}
