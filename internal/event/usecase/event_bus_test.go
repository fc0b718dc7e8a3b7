package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/clock"
	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/event/domain"
)

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, event *domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventRepository) ListUnprocessed(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*domain.Event, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

func (m *MockEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockEventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type MockDeadLetterRecorder struct {
	mock.Mock
}

func (m *MockDeadLetterRecorder) Record(ctx context.Context, deadLetter *deadLetterDomain.DeadLetter) error {
	args := m.Called(ctx, deadLetter)
	return args.Error(0)
}

// memEventRepository keeps events in memory so backlog replay can be observed end to end.
type memEventRepository struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.Event
}

func newMemEventRepository(events ...*domain.Event) *memEventRepository {
	repo := &memEventRepository{events: make(map[uuid.UUID]*domain.Event)}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	return repo
}

func (r *memEventRepository) Create(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *event
	r.events[event.ID] = &stored
	return nil
}

func (r *memEventRepository) ListUnprocessed(_ context.Context, before time.Time, limit int) ([]*domain.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Event
	for _, e := range r.events {
		if !e.Processed && e.CreatedAt.Before(before) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memEventRepository) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.events[id]; ok {
		e.Processed = true
		e.ProcessedAt = &at
	}
	return nil
}

func (r *memEventRepository) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func signedPayload() domain.LeaseTenantSigned {
	return domain.LeaseTenantSigned{LeaseID: "L1", TenantName: "Jane", LandlordUserID: "U1"}
}

func storedEvent(t *testing.T, kind domain.Kind, payload any, createdAt time.Time) *domain.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Event{ID: uuid.Must(uuid.NewV7()), Type: kind, Payload: raw, CreatedAt: createdAt}
}

func TestEventBus_Publish(t *testing.T) {
	t.Run("Success_HandlersRunInOrder", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		var calls []string
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			calls = append(calls, "first")
			return nil
		})
		bus.Subscribe(domain.KindLeaseTenantSigned, On(
			func(ctx context.Context, e *domain.Event, p domain.LeaseTenantSigned) error {
				calls = append(calls, "second:"+p.LandlordUserID)
				return nil
			},
		))
		bus.Subscribe(domain.KindPaymentReceived, func(ctx context.Context, e *domain.Event) error {
			calls = append(calls, "other")
			return nil
		})

		repo.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.Event) bool {
			return e.Type == domain.KindLeaseTenantSigned && !e.Processed &&
				string(e.Payload) == `{"leaseId":"L1","tenantName":"Jane","landlordUserId":"U1"}`
		})).Return(nil).Once()
		repo.On("MarkProcessed", mock.Anything, mock.Anything, testNow).Return(nil).Once()

		event, err := bus.Publish(context.Background(), signedPayload())

		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second:U1"}, calls)
		assert.True(t, event.Processed)
		assert.Equal(t, testNow, event.CreatedAt)
		repo.AssertExpectations(t)
	})

	t.Run("Success_PointerPayloadIsNormalized", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		var got domain.LeaseTenantSigned
		bus.Subscribe(domain.KindLeaseTenantSigned, On(
			func(ctx context.Context, e *domain.Event, p domain.LeaseTenantSigned) error {
				got = p
				return nil
			},
		))
		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		payload := signedPayload()
		_, err := bus.Publish(context.Background(), &payload)

		require.NoError(t, err)
		assert.Equal(t, "L1", got.LeaseID)
	})

	t.Run("Success_FailingAndPanickingHandlersAreIsolated", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		ran := 0
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			return errors.New("boom")
		})
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			panic("kaboom")
		})
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			ran++
			return nil
		})
		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := bus.Publish(context.Background(), signedPayload())

		require.NoError(t, err)
		assert.Equal(t, 1, ran)
	})

	t.Run("Success_PersistFailureStillDispatches", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		ran := false
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			ran = true
			return nil
		})
		repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

		event, err := bus.Publish(context.Background(), signedPayload())

		require.NoError(t, err)
		assert.True(t, ran)
		assert.False(t, event.Processed)
		repo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Success_NoSubscribers", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		_, err := bus.Publish(context.Background(), domain.JobCompleted{JobID: "J1", HomeownerUserID: "H1"})

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("Error_NilPayload", func(t *testing.T) {
		bus := NewEventBus(Config{}, &MockEventRepository{}, nil, clock.NewMockClock(testNow), nil)

		_, err := bus.Publish(context.Background(), nil)

		assert.ErrorIs(t, err, domain.ErrNilPayload)
	})

	t.Run("Error_NilPointerPayload", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		_, err := bus.Publish(context.Background(), (*domain.LeaseTenantSigned)(nil))

		assert.ErrorIs(t, err, domain.ErrNilPayload)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("Error_InvalidPayload", func(t *testing.T) {
		bus := NewEventBus(Config{}, &MockEventRepository{}, nil, clock.NewMockClock(testNow), nil)

		_, err := bus.Publish(context.Background(), domain.LeaseTenantSigned{LeaseID: "L1"})

		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})
}

func TestEventBus_PublishRaw(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo := &MockEventRepository{}
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

		event, err := bus.PublishRaw(
			context.Background(),
			"lease.tenant_signed",
			json.RawMessage(`{"leaseId":"L1","tenantName":"Jane","landlordUserId":"U1"}`),
		)

		require.NoError(t, err)
		assert.Equal(t, domain.KindLeaseTenantSigned, event.Type)
		assert.IsType(t, domain.LeaseTenantSigned{}, event.Data)
	})

	t.Run("Error_UnknownKind", func(t *testing.T) {
		bus := NewEventBus(Config{}, &MockEventRepository{}, nil, clock.NewMockClock(testNow), nil)

		_, err := bus.PublishRaw(context.Background(), "lease.unknown", json.RawMessage(`{}`))

		assert.ErrorIs(t, err, domain.ErrUnknownKind)
	})
}

func TestEventBus_ProcessBacklog(t *testing.T) {
	t.Run("Success_ReplaysOnceAndIsIdempotent", func(t *testing.T) {
		older := storedEvent(t, domain.KindLeaseTenantSigned, signedPayload(), testNow.Add(-2*time.Hour))
		newer := storedEvent(t, domain.KindLeaseTenantSigned,
			domain.LeaseTenantSigned{LeaseID: "L2", LandlordUserID: "U2"}, testNow.Add(-time.Hour))
		done := storedEvent(t, domain.KindLeaseTenantSigned, signedPayload(), testNow.Add(-3*time.Hour))
		done.Processed = true
		repo := newMemEventRepository(older, newer, done)

		bus := NewEventBus(Config{BacklogBatchSize: 1}, repo, nil, clock.NewMockClock(testNow), nil)
		var seen []string
		bus.Subscribe(domain.KindLeaseTenantSigned, On(
			func(ctx context.Context, e *domain.Event, p domain.LeaseTenantSigned) error {
				seen = append(seen, p.LeaseID)
				return nil
			},
		))

		count, err := bus.ProcessBacklog(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		assert.Equal(t, []string{"L1", "L2"}, seen)

		count, err = bus.ProcessBacklog(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.Len(t, seen, 2)
	})

	t.Run("Success_GraceSkipsRecentEvents", func(t *testing.T) {
		recent := storedEvent(t, domain.KindLeaseTenantSigned, signedPayload(), testNow.Add(-10*time.Second))
		repo := newMemEventRepository(recent)

		bus := NewEventBus(Config{BacklogGrace: time.Minute}, repo, nil, clock.NewMockClock(testNow), nil)

		count, err := bus.ProcessBacklog(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("Success_UndecodableEventIsDeadLettered", func(t *testing.T) {
		bad := &domain.Event{
			ID:        uuid.Must(uuid.NewV7()),
			Type:      domain.KindLeaseTenantSigned,
			Payload:   json.RawMessage(`{"leaseId":42}`),
			CreatedAt: testNow.Add(-time.Hour),
		}
		repo := newMemEventRepository(bad)
		deadLetters := &MockDeadLetterRecorder{}
		deadLetters.On("Record", mock.Anything, mock.MatchedBy(func(dl *deadLetterDomain.DeadLetter) bool {
			return dl.Source == deadLetterDomain.SourceEvent && dl.SourceID == bad.ID &&
				dl.Kind == "lease.tenant_signed"
		})).Return(nil).Once()

		bus := NewEventBus(Config{}, repo, deadLetters, clock.NewMockClock(testNow), nil)
		bus.Subscribe(domain.KindLeaseTenantSigned, func(ctx context.Context, e *domain.Event) error {
			t.Fatal("handler must not run for an undecodable event")
			return nil
		})

		count, err := bus.ProcessBacklog(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, count)
		assert.True(t, repo.events[bad.ID].Processed)
		deadLetters.AssertExpectations(t)
	})

	t.Run("Error_ListFails", func(t *testing.T) {
		repo := &MockEventRepository{}
		repo.On("ListUnprocessed", mock.Anything, testNow, 100).Return(nil, errors.New("db down")).Once()
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		_, err := bus.ProcessBacklog(context.Background())

		assert.Error(t, err)
	})

	t.Run("Error_MarkProcessedFails", func(t *testing.T) {
		event := storedEvent(t, domain.KindLeaseTenantSigned, signedPayload(), testNow.Add(-time.Hour))
		repo := &MockEventRepository{}
		repo.On("ListUnprocessed", mock.Anything, testNow, 100).Return([]*domain.Event{event}, nil).Once()
		repo.On("MarkProcessed", mock.Anything, event.ID, testNow).Return(errors.New("db down")).Once()
		bus := NewEventBus(Config{}, repo, nil, clock.NewMockClock(testNow), nil)

		count, err := bus.ProcessBacklog(context.Background())

		assert.Error(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestOn_WrongPayloadType(t *testing.T) {
	handler := On(func(ctx context.Context, e *domain.Event, p domain.PaymentReceived) error {
		return nil
	})

	err := handler(context.Background(), &domain.Event{Type: domain.KindLeaseTenantSigned, Data: signedPayload()})

	assert.Error(t, err)
}
