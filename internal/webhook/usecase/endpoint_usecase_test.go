package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/secrets/localsecrets"

	"github.com/allisson/propflow/internal/clock"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/metrics"
	"github.com/allisson/propflow/internal/webhook/domain"
	"github.com/allisson/propflow/internal/webhook/service"
)

type endpointFixture struct {
	useCase    EndpointUseCase
	endpoints  *memEndpointRepository
	deliveries *memDeliveryRepository
	cache      *EndpointCache
}

func newEndpointFixture(t *testing.T) *endpointFixture {
	t.Helper()

	key, err := localsecrets.NewRandomKey()
	require.NoError(t, err)
	keeper := localsecrets.NewKeeper(key)
	t.Cleanup(func() { _ = keeper.Close() })

	f := &endpointFixture{
		endpoints:  newMemEndpointRepository(),
		deliveries: newMemDeliveryRepository(),
		cache:      NewEndpointCache(time.Minute),
	}
	f.useCase = NewEndpointUseCaseWithMetrics(
		NewEndpointUseCase(inlineTxManager{}, f.endpoints, f.deliveries, f.cache,
			service.NewKeeperSealer(keeper), clock.NewMockClock(testNow), nil),
		metrics.NewNoOpBusinessMetrics(),
	)
	return f
}

func TestEndpointUseCase_Create(t *testing.T) {
	t.Run("Success_GeneratesAndSealsSecret", func(t *testing.T) {
		f := newEndpointFixture(t)

		endpoint, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
			TenantID: "T1",
			URL:      "https://example.com/hooks",
			Events:   []string{"payment.completed"},
		})

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(endpoint.Secret, service.SecretPrefix))
		assert.True(t, endpoint.IsActive)
		assert.Equal(t, testNow, endpoint.CreatedAt)

		stored := f.endpoints.get(endpoint.ID)
		assert.NotEqual(t, endpoint.Secret, stored.Secret)
		assert.True(t, strings.HasPrefix(stored.Secret, "sealed:v1:"))

		got, err := f.useCase.Get(context.Background(), endpoint.ID)
		require.NoError(t, err)
		assert.Equal(t, endpoint.Secret, got.Secret)
	})

	t.Run("Success_ProvidedSecretAndInactive", func(t *testing.T) {
		f := newEndpointFixture(t)
		inactive := false

		endpoint, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
			TenantID: "T1",
			URL:      "http://localhost:8080/hook",
			Secret:   "my-shared-secret-123",
			Events:   []string{"lease.signed", "payment.completed"},
			IsActive: &inactive,
		})

		require.NoError(t, err)
		assert.Equal(t, "my-shared-secret-123", endpoint.Secret)
		assert.False(t, endpoint.IsActive)
	})

	tests := []struct {
		name  string
		input domain.CreateEndpointInput
	}{
		{name: "MissingTenant", input: domain.CreateEndpointInput{URL: "https://a.io", Events: []string{"a.b"}}},
		{name: "RelativeURL", input: domain.CreateEndpointInput{TenantID: "T1", URL: "/hook", Events: []string{"a.b"}}},
		{name: "FTPURL", input: domain.CreateEndpointInput{TenantID: "T1", URL: "ftp://a.io", Events: []string{"a.b"}}},
		{name: "NoEvents", input: domain.CreateEndpointInput{TenantID: "T1", URL: "https://a.io"}},
		{name: "BadEvent", input: domain.CreateEndpointInput{TenantID: "T1", URL: "https://a.io", Events: []string{"PAID"}}},
		{name: "ShortSecret", input: domain.CreateEndpointInput{
			TenantID: "T1", URL: "https://a.io", Secret: "short", Events: []string{"a.b"},
		}},
	}
	for _, tt := range tests {
		t.Run("Error_"+tt.name, func(t *testing.T) {
			f := newEndpointFixture(t)
			input := tt.input

			_, err := f.useCase.Create(context.Background(), &input)

			assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}

func TestEndpointUseCase_ListByTenant(t *testing.T) {
	f := newEndpointFixture(t)
	for _, tenant := range []string{"T1", "T1", "T2"} {
		_, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
			TenantID: tenant,
			URL:      "https://example.com/hooks",
			Events:   []string{"payment.completed"},
		})
		require.NoError(t, err)
	}

	endpoints, err := f.useCase.ListByTenant(context.Background(), "T1")

	require.NoError(t, err)
	assert.Len(t, endpoints, 2)
	for _, endpoint := range endpoints {
		assert.Empty(t, endpoint.Secret)
	}
}

func TestEndpointUseCase_Update(t *testing.T) {
	f := newEndpointFixture(t)
	created, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
		TenantID: "T1",
		URL:      "https://example.com/hooks",
		Events:   []string{"payment.completed"},
	})
	require.NoError(t, err)

	stored := f.endpoints.get(created.ID)
	f.cache.SetEndpoint(&stored)
	require.NoError(t, f.endpoints.Deactivate(context.Background(), created.ID, testNow))
	_, err = f.endpoints.RecordFailure(context.Background(), created.ID, testNow, "HTTP 500")
	require.NoError(t, err)

	updated, err := f.useCase.Update(context.Background(), created.ID, &domain.UpdateEndpointInput{
		URL:      "https://example.com/v2/hooks",
		Events:   []string{"invoice.paid"},
		IsActive: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/v2/hooks", updated.URL)
	assert.True(t, updated.IsActive)
	assert.Equal(t, 0, updated.FailureCount)
	assert.Empty(t, updated.Secret)

	_, cached := f.cache.Endpoint(created.ID)
	assert.False(t, cached)

	_, err = f.useCase.Update(context.Background(), uuid.Must(uuid.NewV7()), &domain.UpdateEndpointInput{
		URL:    "https://example.com",
		Events: []string{"invoice.paid"},
	})
	assert.ErrorIs(t, err, domain.ErrEndpointNotFound)
}

func TestEndpointUseCase_RotateSecret(t *testing.T) {
	f := newEndpointFixture(t)
	created, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
		TenantID: "T1",
		URL:      "https://example.com/hooks",
		Events:   []string{"payment.completed"},
	})
	require.NoError(t, err)

	rotated, err := f.useCase.RotateSecret(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, created.Secret, rotated.Secret)

	got, err := f.useCase.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, rotated.Secret, got.Secret)
}

func TestEndpointUseCase_DeleteAndListDeliveries(t *testing.T) {
	f := newEndpointFixture(t)
	created, err := f.useCase.Create(context.Background(), &domain.CreateEndpointInput{
		TenantID: "T1",
		URL:      "https://example.com/hooks",
		Events:   []string{"payment.completed"},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.deliveries.Create(context.Background(), &domain.Delivery{
			ID:         uuid.Must(uuid.NewV7()),
			EndpointID: created.ID,
			EventType:  "payment.completed",
			Status:     domain.DeliveryStatusPending,
		}))
	}

	deliveries, err := f.useCase.ListDeliveries(context.Background(), created.ID, 0, 2)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)

	require.NoError(t, f.useCase.Delete(context.Background(), created.ID))

	_, err = f.useCase.ListDeliveries(context.Background(), created.ID, 0, 2)
	assert.ErrorIs(t, err, domain.ErrEndpointNotFound)
	assert.ErrorIs(t, f.useCase.Delete(context.Background(), created.ID), domain.ErrEndpointNotFound)
}
