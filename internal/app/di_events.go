package app

import (
	"database/sql"
	"fmt"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	deadLetterHTTP "github.com/allisson/propflow/internal/deadletter/http"
	deadLetterRepository "github.com/allisson/propflow/internal/deadletter/repository"
	deadLetterUseCase "github.com/allisson/propflow/internal/deadletter/usecase"
	"github.com/allisson/propflow/internal/event/handler"
	eventHTTP "github.com/allisson/propflow/internal/event/http"
	eventRepository "github.com/allisson/propflow/internal/event/repository"
	eventUseCase "github.com/allisson/propflow/internal/event/usecase"
)

// DeadLetterRepository returns the dead letter repository for the configured driver.
func (c *Container) DeadLetterRepository() (deadLetterUseCase.DeadLetterRepository, error) {
	return lazy(c, "deadLetterRepo", func() (deadLetterUseCase.DeadLetterRepository, error) {
		return byDriver(c,
			func(db *sql.DB) deadLetterUseCase.DeadLetterRepository {
				return deadLetterRepository.NewPostgreSQLDeadLetterRepository(db)
			},
			func(db *sql.DB) deadLetterUseCase.DeadLetterRepository {
				return deadLetterRepository.NewMySQLDeadLetterRepository(db)
			},
		)
	})
}

// deadLetterRecorder is the dead letter use case without requeuers. Producers record
// through it, which keeps them free of a dependency cycle with DeadLetterUseCase.
func (c *Container) deadLetterRecorder() (*deadLetterUseCase.DeadLetterUseCase, error) {
	return lazy(c, "deadLetterRecorder", func() (*deadLetterUseCase.DeadLetterUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for dead letter use case: %w", err)
		}
		repo, err := c.DeadLetterRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get dead letter repository: %w", err)
		}
		return deadLetterUseCase.NewDeadLetterUseCase(txManager, repo, c.clock, c.Logger()), nil
	})
}

// DeadLetterUseCase returns the dead letter use case with the job queue and the
// webhook dispatcher registered as requeuers.
func (c *Container) DeadLetterUseCase() (deadLetterUseCase.UseCase, error) {
	return lazy(c, "deadLetterUseCase", func() (deadLetterUseCase.UseCase, error) {
		useCase, err := c.deadLetterRecorder()
		if err != nil {
			return nil, err
		}
		queue, err := c.JobQueue()
		if err != nil {
			return nil, fmt.Errorf("failed to get job queue for dead letter requeue: %w", err)
		}
		dispatcher, err := c.WebhookDispatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to get webhook dispatcher for dead letter requeue: %w", err)
		}
		useCase.RegisterRequeuer(deadLetterDomain.SourceJob, deadLetterUseCase.RequeuerFunc(queue.Requeue))
		useCase.RegisterRequeuer(
			deadLetterDomain.SourceWebhookDelivery,
			deadLetterUseCase.RequeuerFunc(dispatcher.RequeueDelivery),
		)
		return useCase, nil
	})
}

// DeadLetterHandler returns the dead letter HTTP handler.
func (c *Container) DeadLetterHandler() (*deadLetterHTTP.DeadLetterHandler, error) {
	return lazy(c, "deadLetterHandler", func() (*deadLetterHTTP.DeadLetterHandler, error) {
		useCase, err := c.DeadLetterUseCase()
		if err != nil {
			return nil, err
		}
		return deadLetterHTTP.NewDeadLetterHandler(useCase, c.Logger()), nil
	})
}

// EventRepository returns the event repository for the configured driver.
func (c *Container) EventRepository() (eventUseCase.EventRepository, error) {
	return lazy(c, "eventRepo", func() (eventUseCase.EventRepository, error) {
		return byDriver(c,
			func(db *sql.DB) eventUseCase.EventRepository {
				return eventRepository.NewPostgreSQLEventRepository(db)
			},
			func(db *sql.DB) eventUseCase.EventRepository {
				return eventRepository.NewMySQLEventRepository(db)
			},
		)
	})
}

// EventBus returns the event bus, wrapped with metrics when they are enabled.
// Handlers are subscribed by the event system, not here.
func (c *Container) EventBus() (eventUseCase.UseCase, error) {
	return lazy(c, "eventBus", func() (eventUseCase.UseCase, error) {
		repo, err := c.EventRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get event repository for event bus: %w", err)
		}
		deadLetters, err := c.deadLetterRecorder()
		if err != nil {
			return nil, err
		}

		var bus eventUseCase.UseCase = eventUseCase.NewEventBus(
			eventUseCase.Config{
				BacklogBatchSize: c.config.EventBacklogBatchSize,
				BacklogGrace:     c.config.EventBacklogGrace,
			},
			repo,
			deadLetters,
			c.clock,
			c.Logger(),
		)

		if c.config.MetricsEnabled {
			businessMetrics, err := c.BusinessMetrics()
			if err != nil {
				return nil, fmt.Errorf("failed to get business metrics for event bus: %w", err)
			}
			bus = eventUseCase.NewEventBusWithMetrics(bus, businessMetrics)
		}
		return bus, nil
	})
}

// EventHandlers returns the domain event handler table.
func (c *Container) EventHandlers() (*handler.Handlers, error) {
	return lazy(c, "eventHandlers", func() (*handler.Handlers, error) {
		queue, err := c.JobQueue()
		if err != nil {
			return nil, fmt.Errorf("failed to get job queue for event handlers: %w", err)
		}
		notifications, err := c.NotificationUseCase()
		if err != nil {
			return nil, err
		}
		broadcaster, err := c.Broadcaster()
		if err != nil {
			return nil, err
		}
		ledger, err := c.LedgerUseCase()
		if err != nil {
			return nil, err
		}
		return handler.New(
			handler.Config{
				PaymentHoldDays:  c.config.PaymentHoldDays,
				LateFeeGraceDays: c.config.LateFeeGraceDays,
			},
			queue,
			notifications,
			broadcaster,
			ledger,
			c.clock,
			c.Logger(),
		), nil
	})
}

// EventHandler returns the event publishing HTTP handler.
func (c *Container) EventHandler() (*eventHTTP.EventHandler, error) {
	return lazy(c, "eventHTTPHandler", func() (*eventHTTP.EventHandler, error) {
		bus, err := c.EventBus()
		if err != nil {
			return nil, err
		}
		return eventHTTP.NewEventHandler(bus, c.Logger()), nil
	})
}
