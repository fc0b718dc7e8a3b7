// Package usecase implements webhook endpoint management and the delivery dispatcher.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/webhook/domain"
)

// EndpointRepository persists endpoints. Secrets are stored as given; sealing is
// done by the use cases.
type EndpointRepository interface {
	Create(ctx context.Context, endpoint *domain.Endpoint) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error)
	Update(ctx context.Context, endpoint *domain.Endpoint) error
	Delete(ctx context.Context, id uuid.UUID) error
	// RecordSuccess resets failure_count and sets last_success_at.
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordFailure increments failure_count and returns the new value.
	RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, reason string) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error
}

// DeliveryRepository persists deliveries.
type DeliveryRepository interface {
	Create(ctx context.Context, delivery *domain.Delivery) error
	// ClaimDue leases up to limit deliveries that are pending or retrying, have
	// attempts below the maximum, a due or unset next_retry_at and no live lease.
	ClaimDue(ctx context.Context, now time.Time, limit int, owner string, leaseUntil time.Time) ([]*domain.Delivery, error)
	Update(ctx context.Context, delivery *domain.Delivery) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Delivery, error)
	ListByEndpoint(ctx context.Context, endpointID uuid.UUID, offset, limit int) ([]*domain.Delivery, error)
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadLetterRecorder receives deliveries that failed for good.
type DeadLetterRecorder interface {
	Record(ctx context.Context, deadLetter *deadLetterDomain.DeadLetter) error
}

// ProcessResult summarizes one delivery run.
type ProcessResult struct {
	Claimed   int
	Delivered int
	Retrying  int
	Failed    int
}

// Dispatcher triggers and delivers webhooks.
type Dispatcher interface {
	Trigger(ctx context.Context, tenantID, eventType string, data any) ([]*domain.Delivery, error)
	ProcessDeliveries(ctx context.Context) (ProcessResult, error)
	RequeueDelivery(ctx context.Context, id uuid.UUID) error
	Wait(ctx context.Context) error
}

// EndpointUseCase manages endpoints and exposes their delivery history.
type EndpointUseCase interface {
	Create(ctx context.Context, input *domain.CreateEndpointInput) (*domain.Endpoint, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error)
	Update(ctx context.Context, id uuid.UUID, input *domain.UpdateEndpointInput) (*domain.Endpoint, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RotateSecret(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error)
	ListDeliveries(ctx context.Context, endpointID uuid.UUID, offset, limit int) ([]*domain.Delivery, error)
}
