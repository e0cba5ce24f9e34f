package interfaces

import (
	"context"
	"log"

	"github.com/sapirl7/solarma-sub000/internal/escrow/application"
	"github.com/sapirl7/solarma-sub000/internal/eventing/eventbus"
	"github.com/sapirl7/solarma-sub000/internal/observability/metrics"
)

// InstrumentedPublisher wraps an event publisher with per-type counters.
type InstrumentedPublisher struct {
	next application.EventPublisher
}

// NewInstrumentedPublisher constructs an InstrumentedPublisher.
func NewInstrumentedPublisher(next application.EventPublisher) *InstrumentedPublisher {
	return &InstrumentedPublisher{next: next}
}

// Publish counts the event and forwards it.
func (p *InstrumentedPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.next == nil {
		return nil
	}
	metrics.IncEventPublished(eventbus.EventType(event))
	return p.next.Publish(ctx, event)
}

// LoggingPublisher logs lifecycle events. Used when the service runs
// without an outbox.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	if p == nil {
		return nil
	}
	p.logger.Printf("event %s: %+v", eventbus.EventType(event), event)
	return nil
}
