package app

import (
	"context"
	"database/sql"
	"fmt"

	webhookHTTP "github.com/allisson/propflow/internal/webhook/http"
	webhookRepository "github.com/allisson/propflow/internal/webhook/repository"
	"github.com/allisson/propflow/internal/webhook/service"
	webhookUseCase "github.com/allisson/propflow/internal/webhook/usecase"
)

// EndpointRepository returns the webhook endpoint repository for the configured driver.
func (c *Container) EndpointRepository() (webhookUseCase.EndpointRepository, error) {
	return lazy(c, "endpointRepo", func() (webhookUseCase.EndpointRepository, error) {
		return byDriver(c,
			func(db *sql.DB) webhookUseCase.EndpointRepository {
				return webhookRepository.NewPostgreSQLEndpointRepository(db)
			},
			func(db *sql.DB) webhookUseCase.EndpointRepository {
				return webhookRepository.NewMySQLEndpointRepository(db)
			},
		)
	})
}

// DeliveryRepository returns the webhook delivery repository for the configured driver.
func (c *Container) DeliveryRepository() (webhookUseCase.DeliveryRepository, error) {
	return lazy(c, "deliveryRepo", func() (webhookUseCase.DeliveryRepository, error) {
		return byDriver(c,
			func(db *sql.DB) webhookUseCase.DeliveryRepository {
				return webhookRepository.NewPostgreSQLDeliveryRepository(db)
			},
			func(db *sql.DB) webhookUseCase.DeliveryRepository {
				return webhookRepository.NewMySQLDeliveryRepository(db)
			},
		)
	})
}

// EndpointCache returns the per-tenant endpoint cache shared by the dispatcher and
// the endpoint use case, so management writes invalidate what the dispatcher reads.
func (c *Container) EndpointCache() *webhookUseCase.EndpointCache {
	cache, _ := lazy(c, "endpointCache", func() (*webhookUseCase.EndpointCache, error) {
		return webhookUseCase.NewEndpointCache(c.config.WebhookEndpointCacheTTL), nil
	})
	return cache
}

// SecretSealer returns a gocloud.dev keeper sealer when WEBHOOK_SECRET_KEY_URI is set,
// otherwise secrets are stored as plaintext.
func (c *Container) SecretSealer() (service.SecretSealer, error) {
	return lazy(c, "secretSealer", func() (service.SecretSealer, error) {
		if c.config.WebhookSecretKeyURI == "" {
			c.Logger().Warn("WEBHOOK_SECRET_KEY_URI not set - webhook secrets stored unsealed")
			return service.NewPlaintextSealer(), nil
		}

		keeper, err := service.OpenKeeper(context.Background(), c.config.WebhookSecretKeyURI)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.keeper = keeper
		c.mu.Unlock()

		return service.NewKeeperSealer(keeper), nil
	})
}

// WebhookDispatcher returns the webhook dispatcher.
func (c *Container) WebhookDispatcher() (webhookUseCase.Dispatcher, error) {
	return lazy(c, "webhookDispatcher", func() (webhookUseCase.Dispatcher, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for webhook dispatcher: %w", err)
		}
		endpoints, err := c.EndpointRepository()
		if err != nil {
			return nil, err
		}
		deliveries, err := c.DeliveryRepository()
		if err != nil {
			return nil, err
		}
		sealer, err := c.SecretSealer()
		if err != nil {
			return nil, err
		}
		deadLetters, err := c.deadLetterRecorder()
		if err != nil {
			return nil, err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, err
		}

		return webhookUseCase.NewWebhookDispatcher(
			webhookUseCase.DispatcherConfig{
				WorkerID:             c.config.WorkerID,
				BatchSize:            c.config.WebhookBatchSize,
				LeaseDuration:        c.config.WebhookLeaseDuration,
				AutoDisableThreshold: c.config.WebhookAutoDisableThreshold,
			},
			txManager,
			endpoints,
			deliveries,
			c.EndpointCache(),
			sealer,
			service.NewHTTPSender(c.config.WebhookTimeout, c.config.WebhookUserAgent),
			deadLetters,
			c.clock,
			businessMetrics,
			c.Logger(),
		), nil
	})
}

// EndpointUseCase returns the endpoint management use case, wrapped with metrics when
// they are enabled.
func (c *Container) EndpointUseCase() (webhookUseCase.EndpointUseCase, error) {
	return lazy(c, "endpointUseCase", func() (webhookUseCase.EndpointUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for endpoint use case: %w", err)
		}
		endpoints, err := c.EndpointRepository()
		if err != nil {
			return nil, err
		}
		deliveries, err := c.DeliveryRepository()
		if err != nil {
			return nil, err
		}
		sealer, err := c.SecretSealer()
		if err != nil {
			return nil, err
		}

		useCase := webhookUseCase.NewEndpointUseCase(
			txManager,
			endpoints,
			deliveries,
			c.EndpointCache(),
			sealer,
			c.clock,
			c.Logger(),
		)

		if c.config.MetricsEnabled {
			businessMetrics, err := c.BusinessMetrics()
			if err != nil {
				return nil, err
			}
			useCase = webhookUseCase.NewEndpointUseCaseWithMetrics(useCase, businessMetrics)
		}
		return useCase, nil
	})
}

// WebhookHandler returns the webhook HTTP handler.
func (c *Container) WebhookHandler() (*webhookHTTP.WebhookHandler, error) {
	return lazy(c, "webhookHandler", func() (*webhookHTTP.WebhookHandler, error) {
		useCase, err := c.EndpointUseCase()
		if err != nil {
			return nil, err
		}
		dispatcher, err := c.WebhookDispatcher()
		if err != nil {
			return nil, err
		}
		return webhookHTTP.NewWebhookHandler(useCase, dispatcher, c.Logger()), nil
	})
}
