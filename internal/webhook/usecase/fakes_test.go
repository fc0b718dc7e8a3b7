package usecase

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/webhook/domain"
)

type inlineTxManager struct{}

func (inlineTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memEndpointRepository keeps endpoints in a map.
type memEndpointRepository struct {
	mu        sync.Mutex
	endpoints map[uuid.UUID]domain.Endpoint
}

func newMemEndpointRepository(endpoints ...*domain.Endpoint) *memEndpointRepository {
	r := &memEndpointRepository{endpoints: make(map[uuid.UUID]domain.Endpoint)}
	for _, e := range endpoints {
		r.endpoints[e.ID] = *e
	}
	return r
}

func (r *memEndpointRepository) Create(_ context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[endpoint.ID] = *endpoint
	return nil
}

func (r *memEndpointRepository) Get(_ context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}
	return &e, nil
}

func (r *memEndpointRepository) ListByTenant(_ context.Context, tenantID string) ([]*domain.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*domain.Endpoint, 0)
	for _, e := range r.endpoints {
		if e.TenantID == tenantID {
			e := e
			result = append(result, &e)
		}
	}
	return result, nil
}

func (r *memEndpointRepository) Update(_ context.Context, endpoint *domain.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[endpoint.ID]; !ok {
		return domain.ErrEndpointNotFound
	}
	r.endpoints[endpoint.ID] = *endpoint
	return nil
}

func (r *memEndpointRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[id]; !ok {
		return domain.ErrEndpointNotFound
	}
	delete(r.endpoints, id)
	return nil
}

func (r *memEndpointRepository) RecordSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.endpoints[id]
	e.FailureCount = 0
	e.LastSuccessAt = &at
	r.endpoints[id] = e
	return nil
}

func (r *memEndpointRepository) RecordFailure(_ context.Context, id uuid.UUID, at time.Time, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.endpoints[id]
	e.FailureCount++
	e.LastFailureAt = &at
	e.LastFailureReason = &reason
	r.endpoints[id] = e
	return e.FailureCount, nil
}

func (r *memEndpointRepository) Deactivate(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.endpoints[id]
	e.IsActive = false
	e.UpdatedAt = at
	r.endpoints[id] = e
	return nil
}

func (r *memEndpointRepository) get(id uuid.UUID) domain.Endpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endpoints[id]
}

// memDeliveryRepository mirrors the SQL claim predicate in memory.
type memDeliveryRepository struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]domain.Delivery
	order      []uuid.UUID
}

func newMemDeliveryRepository() *memDeliveryRepository {
	return &memDeliveryRepository{deliveries: make(map[uuid.UUID]domain.Delivery)}
}

func (r *memDeliveryRepository) Create(_ context.Context, delivery *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[delivery.ID] = *delivery
	r.order = append(r.order, delivery.ID)
	return nil
}

func (r *memDeliveryRepository) ClaimDue(
	_ context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := make([]*domain.Delivery, 0)
	for _, id := range r.order {
		if len(claimed) == limit {
			break
		}
		d := r.deliveries[id]
		if d.Status != domain.DeliveryStatusPending && d.Status != domain.DeliveryStatusRetrying {
			continue
		}
		if d.Attempts >= domain.MaxDeliveryAttempts {
			continue
		}
		if d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			continue
		}
		if d.LockedUntil != nil && d.LockedUntil.After(now) {
			continue
		}
		d.LockedBy = &owner
		d.LockedUntil = &leaseUntil
		r.deliveries[id] = d
		claimed = append(claimed, &d)
	}
	return claimed, nil
}

func (r *memDeliveryRepository) Update(_ context.Context, delivery *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deliveries[delivery.ID]; !ok {
		return domain.ErrDeliveryNotFound
	}
	r.deliveries[delivery.ID] = *delivery
	return nil
}

func (r *memDeliveryRepository) Get(_ context.Context, id uuid.UUID) (*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, domain.ErrDeliveryNotFound
	}
	return &d, nil
}

func (r *memDeliveryRepository) ListByEndpoint(
	_ context.Context,
	endpointID uuid.UUID,
	offset, limit int,
) ([]*domain.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*domain.Delivery, 0)
	for _, id := range slices.Backward(r.order) {
		d := r.deliveries[id]
		if d.EndpointID == endpointID {
			result = append(result, &d)
		}
	}
	if offset >= len(result) {
		return []*domain.Delivery{}, nil
	}
	return result[offset:min(offset+limit, len(result))], nil
}

func (r *memDeliveryRepository) DeleteDeliveredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, d := range r.deliveries {
		if d.Status == domain.DeliveryStatusDelivered && d.DeliveredAt != nil && d.DeliveredAt.Before(cutoff) {
			delete(r.deliveries, id)
			n++
		}
	}
	return n, nil
}

func (r *memDeliveryRepository) all() []domain.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Delivery, 0, len(r.order))
	for _, id := range r.order {
		if d, ok := r.deliveries[id]; ok {
			result = append(result, d)
		}
	}
	return result
}

type recordingDeadLetters struct {
	mu      sync.Mutex
	letters []*deadLetterDomain.DeadLetter
}

func (r *recordingDeadLetters) Record(_ context.Context, dl *deadLetterDomain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, dl)
	return nil
}

func (r *recordingDeadLetters) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.letters)
}
