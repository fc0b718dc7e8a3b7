package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allisson/propflow/internal/event/domain"
	"github.com/allisson/propflow/internal/metrics"
)

// eventBusWithMetrics decorates UseCase with metrics instrumentation.
type eventBusWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewEventBusWithMetrics wraps an event bus with metrics recording.
func NewEventBusWithMetrics(bus UseCase, m metrics.BusinessMetrics) UseCase {
	return &eventBusWithMetrics{next: bus, metrics: m}
}

func (e *eventBusWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusOf(err)
	e.metrics.RecordOperation(ctx, "events", operation, status)
	e.metrics.RecordDuration(ctx, "events", operation, time.Since(start), status)
}

func (e *eventBusWithMetrics) Publish(ctx context.Context, payload domain.Payload) (*domain.Event, error) {
	start := time.Now()
	event, err := e.next.Publish(ctx, payload)
	e.record(ctx, "publish", start, err)
	return event, err
}

func (e *eventBusWithMetrics) PublishRaw(ctx context.Context, kind string, data json.RawMessage) (*domain.Event, error) {
	start := time.Now()
	event, err := e.next.PublishRaw(ctx, kind, data)
	e.record(ctx, "publish", start, err)
	return event, err
}

func (e *eventBusWithMetrics) Subscribe(kind domain.Kind, handler Handler) {
	e.next.Subscribe(kind, handler)
}

func (e *eventBusWithMetrics) ProcessBacklog(ctx context.Context) (int, error) {
	start := time.Now()
	count, err := e.next.ProcessBacklog(ctx)
	e.record(ctx, "process_backlog", start, err)
	if err == nil {
		e.metrics.RecordBatch(ctx, "events", count)
	}
	return count, err
}
