package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jobRepository "github.com/allisson/propflow/internal/job/repository"
	jobUseCase "github.com/allisson/propflow/internal/job/usecase"
	ledgerRepository "github.com/allisson/propflow/internal/ledger/repository"
	ledgerUseCase "github.com/allisson/propflow/internal/ledger/usecase"
	notificationRepository "github.com/allisson/propflow/internal/notification/repository"
	notificationUseCase "github.com/allisson/propflow/internal/notification/usecase"
	"github.com/allisson/propflow/internal/realtime"
)

const redisConnectTimeout = 5 * time.Second

// NotificationUseCase returns the notification use case.
func (c *Container) NotificationUseCase() (*notificationUseCase.NotificationUseCase, error) {
	return lazy(c, "notificationUseCase", func() (*notificationUseCase.NotificationUseCase, error) {
		repo, err := byDriver(c,
			func(db *sql.DB) notificationUseCase.NotificationRepository {
				return notificationRepository.NewPostgreSQLNotificationRepository(db)
			},
			func(db *sql.DB) notificationUseCase.NotificationRepository {
				return notificationRepository.NewMySQLNotificationRepository(db)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get notification repository: %w", err)
		}
		return notificationUseCase.NewNotificationUseCase(repo, c.clock, c.Logger()), nil
	})
}

// LedgerUseCase returns the ledger use case.
func (c *Container) LedgerUseCase() (*ledgerUseCase.LedgerUseCase, error) {
	return lazy(c, "ledgerUseCase", func() (*ledgerUseCase.LedgerUseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for ledger use case: %w", err)
		}
		repo, err := byDriver(c,
			func(db *sql.DB) ledgerUseCase.LedgerRepository {
				return ledgerRepository.NewPostgreSQLLedgerRepository(db)
			},
			func(db *sql.DB) ledgerUseCase.LedgerRepository {
				return ledgerRepository.NewMySQLLedgerRepository(db)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger repository: %w", err)
		}
		return ledgerUseCase.NewLedgerUseCase(txManager, repo, c.clock, c.Logger()), nil
	})
}

// Broadcaster returns the Redis broadcaster when REDIS_URL is set, or a no-op one.
func (c *Container) Broadcaster() (realtime.Broadcaster, error) {
	return lazy(c, "broadcaster", func() (realtime.Broadcaster, error) {
		if c.config.RedisURL == "" {
			return realtime.NewNoOpBroadcaster(), nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
		defer cancel()

		client, err := realtime.NewRedisClient(ctx, c.config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		c.mu.Lock()
		c.redisClient = client
		c.mu.Unlock()

		return realtime.NewRedisBroadcaster(client, c.clock, c.Logger()), nil
	})
}

// JobRepository returns the job repository for the configured driver.
func (c *Container) JobRepository() (jobUseCase.JobRepository, error) {
	return lazy(c, "jobRepo", func() (jobUseCase.JobRepository, error) {
		return byDriver(c,
			func(db *sql.DB) jobUseCase.JobRepository {
				return jobRepository.NewPostgreSQLJobRepository(db)
			},
			func(db *sql.DB) jobUseCase.JobRepository {
				return jobRepository.NewMySQLJobRepository(db)
			},
		)
	})
}

// JobQueue returns the job queue with an executor registered for every job type.
func (c *Container) JobQueue() (jobUseCase.UseCase, error) {
	return lazy(c, "jobQueue", func() (jobUseCase.UseCase, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for job queue: %w", err)
		}
		repo, err := c.JobRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get job repository: %w", err)
		}
		deadLetters, err := c.deadLetterRecorder()
		if err != nil {
			return nil, err
		}
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, err
		}

		queue := jobUseCase.NewJobQueue(
			jobUseCase.Config{
				WorkerID:          c.config.WorkerID,
				BatchSize:         c.config.JobBatchSize,
				LeaseDuration:     c.config.JobLeaseDuration,
				DefaultMaxRetries: c.config.JobDefaultMaxRetries,
			},
			txManager,
			repo,
			deadLetters,
			c.clock,
			businessMetrics,
			c.Logger(),
		)

		executors, err := c.newExecutors(queue, repo)
		if err != nil {
			return nil, err
		}
		executors.RegisterAll(queue)

		return queue, nil
	})
}

func (c *Container) newExecutors(
	queue jobUseCase.Scheduler,
	jobs jobUseCase.JobRepository,
) (*jobUseCase.Executors, error) {
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
	dispatcher, err := c.WebhookDispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook dispatcher for executors: %w", err)
	}
	events, err := c.EventRepository()
	if err != nil {
		return nil, err
	}
	deliveries, err := c.DeliveryRepository()
	if err != nil {
		return nil, err
	}

	targets := []jobUseCase.CleanupTarget{
		{Name: "events", Delete: events.DeleteProcessedBefore},
		{Name: "jobs", Delete: jobs.DeleteCompletedBefore},
		{Name: "webhook_deliveries", Delete: deliveries.DeleteDeliveredBefore},
	}

	return jobUseCase.NewExecutors(
		jobUseCase.ExecutorConfig{
			RetentionDays:   c.config.CleanupRetentionDays,
			CleanupInterval: c.config.CleanupInterval,
		},
		notifications,
		broadcaster,
		ledger,
		dispatcher,
		queue,
		targets,
		c.clock,
		c.Logger(),
	), nil
}
