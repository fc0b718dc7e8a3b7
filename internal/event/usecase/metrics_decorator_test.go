package usecase

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/event/domain"
	"github.com/allisson/propflow/internal/metrics"
)

type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordBatch(ctx context.Context, domain string, size int) {
	m.Called(ctx, domain, size)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

type MockUseCase struct {
	mock.Mock
}

func (m *MockUseCase) Publish(ctx context.Context, payload domain.Payload) (*domain.Event, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockUseCase) PublishRaw(ctx context.Context, kind string, data json.RawMessage) (*domain.Event, error) {
	args := m.Called(ctx, kind, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockUseCase) Subscribe(kind domain.Kind, handler Handler) {
	m.Called(kind, handler)
}

func (m *MockUseCase) ProcessBacklog(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestEventBusWithMetrics(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_PublishRecordsSuccess", func(t *testing.T) {
		next := &MockUseCase{}
		m := &mockBusinessMetrics{}
		payload := domain.RentDue{LeaseID: "L1", TenantUserID: "T1", DueDate: time.Now()}
		event := &domain.Event{ID: uuid.Must(uuid.NewV7()), Type: domain.KindRentDue}

		next.On("Publish", ctx, payload).Return(event, nil).Once()
		m.On("RecordOperation", ctx, "events", "publish", metrics.StatusSuccess).Return().Once()
		m.On("RecordDuration", ctx, "events", "publish", mock.AnythingOfType("time.Duration"), metrics.StatusSuccess).
			Return().Once()

		result, err := NewEventBusWithMetrics(next, m).Publish(ctx, payload)

		require.NoError(t, err)
		assert.Equal(t, event, result)
		next.AssertExpectations(t)
		m.AssertExpectations(t)
	})

	t.Run("Error_PublishRawRecordsError", func(t *testing.T) {
		next := &MockUseCase{}
		m := &mockBusinessMetrics{}
		data := json.RawMessage(`{}`)

		next.On("PublishRaw", ctx, "bogus.kind", data).Return(nil, domain.ErrUnknownKind).Once()
		m.On("RecordOperation", ctx, "events", "publish", metrics.StatusError).Return().Once()
		m.On("RecordDuration", ctx, "events", "publish", mock.AnythingOfType("time.Duration"), metrics.StatusError).
			Return().Once()

		_, err := NewEventBusWithMetrics(next, m).PublishRaw(ctx, "bogus.kind", data)

		assert.ErrorIs(t, err, domain.ErrUnknownKind)
		m.AssertExpectations(t)
	})

	t.Run("Success_ProcessBacklogRecordsBatch", func(t *testing.T) {
		next := &MockUseCase{}
		m := &mockBusinessMetrics{}

		next.On("ProcessBacklog", ctx).Return(4, nil).Once()
		m.On("RecordOperation", ctx, "events", "process_backlog", metrics.StatusSuccess).Return().Once()
		m.On("RecordDuration", ctx, "events", "process_backlog", mock.AnythingOfType("time.Duration"),
			metrics.StatusSuccess).Return().Once()
		m.On("RecordBatch", ctx, "events", 4).Return().Once()

		count, err := NewEventBusWithMetrics(next, m).ProcessBacklog(ctx)

		require.NoError(t, err)
		assert.Equal(t, 4, count)
		m.AssertExpectations(t)
	})

	t.Run("Subscribe_Delegates", func(t *testing.T) {
		next := &MockUseCase{}
		next.On("Subscribe", domain.KindRentDue, mock.Anything).Return().Once()

		NewEventBusWithMetrics(next, &mockBusinessMetrics{}).
			Subscribe(domain.KindRentDue, func(context.Context, *domain.Event) error { return nil })

		next.AssertExpectations(t)
	})
}
