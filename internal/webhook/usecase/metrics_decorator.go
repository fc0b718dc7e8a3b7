package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/metrics"
	"github.com/allisson/propflow/internal/webhook/domain"
)

// endpointUseCaseWithMetrics decorates EndpointUseCase with metrics instrumentation.
type endpointUseCaseWithMetrics struct {
	next    EndpointUseCase
	metrics metrics.BusinessMetrics
}

// NewEndpointUseCaseWithMetrics wraps an EndpointUseCase with metrics recording.
func NewEndpointUseCaseWithMetrics(useCase EndpointUseCase, m metrics.BusinessMetrics) EndpointUseCase {
	return &endpointUseCaseWithMetrics{next: useCase, metrics: m}
}

func (e *endpointUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := metrics.StatusOf(err)
	e.metrics.RecordOperation(ctx, "webhooks", operation, status)
	e.metrics.RecordDuration(ctx, "webhooks", operation, time.Since(start), status)
}

func (e *endpointUseCaseWithMetrics) Create(
	ctx context.Context,
	input *domain.CreateEndpointInput,
) (*domain.Endpoint, error) {
	start := time.Now()
	endpoint, err := e.next.Create(ctx, input)
	e.record(ctx, "endpoint_create", start, err)
	return endpoint, err
}

func (e *endpointUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	start := time.Now()
	endpoint, err := e.next.Get(ctx, id)
	e.record(ctx, "endpoint_get", start, err)
	return endpoint, err
}

func (e *endpointUseCaseWithMetrics) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error) {
	start := time.Now()
	endpoints, err := e.next.ListByTenant(ctx, tenantID)
	e.record(ctx, "endpoint_list", start, err)
	return endpoints, err
}

func (e *endpointUseCaseWithMetrics) Update(
	ctx context.Context,
	id uuid.UUID,
	input *domain.UpdateEndpointInput,
) (*domain.Endpoint, error) {
	start := time.Now()
	endpoint, err := e.next.Update(ctx, id, input)
	e.record(ctx, "endpoint_update", start, err)
	return endpoint, err
}

func (e *endpointUseCaseWithMetrics) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := e.next.Delete(ctx, id)
	e.record(ctx, "endpoint_delete", start, err)
	return err
}

func (e *endpointUseCaseWithMetrics) RotateSecret(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	start := time.Now()
	endpoint, err := e.next.RotateSecret(ctx, id)
	e.record(ctx, "endpoint_rotate_secret", start, err)
	return endpoint, err
}

func (e *endpointUseCaseWithMetrics) ListDeliveries(
	ctx context.Context,
	endpointID uuid.UUID,
	offset, limit int,
) ([]*domain.Delivery, error) {
	start := time.Now()
	deliveries, err := e.next.ListDeliveries(ctx, endpointID, offset, limit)
	e.record(ctx, "delivery_list", start, err)
	return deliveries, err
}
