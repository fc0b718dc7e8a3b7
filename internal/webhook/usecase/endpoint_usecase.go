package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/clock"
	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	customValidation "github.com/allisson/propflow/internal/validation"
	"github.com/allisson/propflow/internal/webhook/domain"
	"github.com/allisson/propflow/internal/webhook/service"
)

// endpointUseCase implements EndpointUseCase.
type endpointUseCase struct {
	txManager  database.TxManager
	endpoints  EndpointRepository
	deliveries DeliveryRepository
	cache      *EndpointCache
	sealer     service.SecretSealer
	clock      clock.Clock
	logger     *slog.Logger
}

// NewEndpointUseCase creates a new EndpointUseCase.
func NewEndpointUseCase(
	txManager database.TxManager,
	endpoints EndpointRepository,
	deliveries DeliveryRepository,
	cache *EndpointCache,
	sealer service.SecretSealer,
	clk clock.Clock,
	logger *slog.Logger,
) EndpointUseCase {
	if cache == nil {
		cache = NewEndpointCache(0)
	}
	return &endpointUseCase{
		txManager:  txManager,
		endpoints:  endpoints,
		deliveries: deliveries,
		cache:      cache,
		sealer:     sealer,
		clock:      clk,
		logger:     logger,
	}
}

func validateEvents(events []string) error {
	return validation.Validate(events,
		validation.Required,
		validation.Each(validation.Required, customValidation.EventName),
	)
}

func validateCreateInput(input *domain.CreateEndpointInput) error {
	err := validation.ValidateStruct(input,
		validation.Field(&input.TenantID, validation.Required, customValidation.NotBlank),
		validation.Field(&input.URL, validation.Required, customValidation.HTTPURL),
		validation.Field(&input.Secret, validation.Length(16, 256)),
	)
	if err != nil {
		return customValidation.WrapValidationError(err)
	}
	if err := validateEvents(input.Events); err != nil {
		return customValidation.WrapValidationError(validation.Errors{"events": err})
	}
	return nil
}

// Create registers an endpoint. The returned endpoint carries the plaintext
// secret; this is the only time it is shown besides RotateSecret.
func (uc *endpointUseCase) Create(ctx context.Context, input *domain.CreateEndpointInput) (*domain.Endpoint, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	secret := input.Secret
	if secret == "" {
		generated, err := service.GenerateSecret()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to generate webhook secret")
		}
		secret = generated
	}

	sealed, err := uc.sealer.Seal(ctx, secret)
	if err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	now := uc.clock.Now()
	endpoint := &domain.Endpoint{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  input.TenantID,
		URL:       input.URL,
		Secret:    sealed,
		Events:    input.Events,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.endpoints.Create(ctx, endpoint); err != nil {
		return nil, err
	}
	uc.cache.Invalidate(endpoint.TenantID, endpoint.ID)

	if uc.logger != nil {
		uc.logger.Info("webhook endpoint created",
			slog.String("endpoint_id", endpoint.ID.String()),
			slog.String("tenant_id", endpoint.TenantID),
		)
	}

	created := *endpoint
	created.Secret = secret
	return &created, nil
}

// Get returns the endpoint with its secret opened.
func (uc *endpointUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	endpoint, err := uc.endpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	secret, err := uc.sealer.Open(ctx, endpoint.Secret)
	if err != nil {
		return nil, apperrors.Wrap(domain.ErrSecretUnavailable, err.Error())
	}
	endpoint.Secret = secret
	return endpoint, nil
}

// ListByTenant returns the tenant's endpoints with secrets removed.
func (uc *endpointUseCase) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error) {
	endpoints, err := uc.endpoints.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, endpoint := range endpoints {
		endpoint.Secret = ""
	}
	return endpoints, nil
}

func (uc *endpointUseCase) Update(
	ctx context.Context,
	id uuid.UUID,
	input *domain.UpdateEndpointInput,
) (*domain.Endpoint, error) {
	err := validation.ValidateStruct(input,
		validation.Field(&input.URL, validation.Required, customValidation.HTTPURL),
	)
	if err != nil {
		return nil, customValidation.WrapValidationError(err)
	}
	if err := validateEvents(input.Events); err != nil {
		return nil, customValidation.WrapValidationError(validation.Errors{"events": err})
	}

	var endpoint *domain.Endpoint
	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		endpoint, err = uc.endpoints.Get(ctx, id)
		if err != nil {
			return err
		}
		endpoint.URL = input.URL
		endpoint.Events = input.Events
		if input.IsActive && !endpoint.IsActive {
			endpoint.FailureCount = 0
		}
		endpoint.IsActive = input.IsActive
		endpoint.UpdatedAt = uc.clock.Now()
		return uc.endpoints.Update(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}

	uc.cache.Invalidate(endpoint.TenantID, endpoint.ID)
	endpoint.Secret = ""
	return endpoint, nil
}

func (uc *endpointUseCase) Delete(ctx context.Context, id uuid.UUID) error {
	endpoint, err := uc.endpoints.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := uc.endpoints.Delete(ctx, id); err != nil {
		return err
	}
	uc.cache.Invalidate(endpoint.TenantID, endpoint.ID)
	return nil
}

// RotateSecret replaces the signing secret and returns the new plaintext.
func (uc *endpointUseCase) RotateSecret(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	secret, err := service.GenerateSecret()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to generate webhook secret")
	}
	sealed, err := uc.sealer.Seal(ctx, secret)
	if err != nil {
		return nil, err
	}

	var endpoint *domain.Endpoint
	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		endpoint, err = uc.endpoints.Get(ctx, id)
		if err != nil {
			return err
		}
		endpoint.Secret = sealed
		endpoint.UpdatedAt = uc.clock.Now()
		return uc.endpoints.Update(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}

	uc.cache.Invalidate(endpoint.TenantID, endpoint.ID)
	endpoint.Secret = secret
	return endpoint, nil
}

func (uc *endpointUseCase) ListDeliveries(
	ctx context.Context,
	endpointID uuid.UUID,
	offset, limit int,
) ([]*domain.Delivery, error) {
	if _, err := uc.endpoints.Get(ctx, endpointID); err != nil {
		return nil, err
	}
	return uc.deliveries.ListByEndpoint(ctx, endpointID, offset, limit)
}
