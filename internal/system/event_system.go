// Package system owns the lifecycle of the background event system: handler
// registration, backlog replay and the processing loop.
package system

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/handler"
	eventUsecase "github.com/allisson/propflow/internal/event/usecase"
	jobDomain "github.com/allisson/propflow/internal/job/domain"
	jobUsecase "github.com/allisson/propflow/internal/job/usecase"
	webhookUsecase "github.com/allisson/propflow/internal/webhook/usecase"
)

// HandlerTable registers the event handlers on a subscriber.
type HandlerTable interface {
	Register(s handler.Subscriber) error
}

// Config holds event system configuration
type Config struct {
	// PollInterval is the processing tick period.
	PollInterval time.Duration
	// ProcessWebhooks adds webhook delivery to every processing tick.
	ProcessWebhooks bool
}

// EventSystem starts and stops the event system. One is created per process.
type EventSystem struct {
	config     Config
	bus        eventUsecase.UseCase
	queue      jobUsecase.UseCase
	dispatcher webhookUsecase.Dispatcher
	handlers   HandlerTable
	logger     *slog.Logger

	mu          sync.Mutex
	registered  bool
	initialized bool
}

// NewEventSystem creates a new EventSystem
func NewEventSystem(
	config Config,
	bus eventUsecase.UseCase,
	queue jobUsecase.UseCase,
	dispatcher webhookUsecase.Dispatcher,
	handlers HandlerTable,
	logger *slog.Logger,
) *EventSystem {
	if config.PollInterval <= 0 {
		config.PollInterval = jobUsecase.DefaultPollInterval
	}
	return &EventSystem{
		config:     config,
		bus:        bus,
		queue:      queue,
		dispatcher: dispatcher,
		handlers:   handlers,
		logger:     logger,
	}
}

// Initialize registers the handlers, replays the event backlog, makes sure a
// cleanup job is pending and starts processing. Calling it again while
// initialized does nothing. Handlers are registered once per EventSystem, so a
// restart after Shutdown does not subscribe them twice.
//
// Backlog and cleanup failures are logged and do not prevent processing from
// starting.
func (s *EventSystem) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	if !s.registered {
		if err := s.handlers.Register(s.bus); err != nil {
			return apperrors.Wrap(err, "failed to register event handlers")
		}
		s.registered = true
	}

	replayed, err := s.bus.ProcessBacklog(ctx)
	if err != nil {
		s.logError("failed to replay event backlog", err)
	}

	created, err := s.queue.EnsureScheduled(ctx, jobUsecase.ScheduleInput{
		Type:     jobDomain.JobTypeCleanup,
		Payload:  jobDomain.CleanupPayload{},
		Priority: jobDomain.PriorityLow,
	})
	if err != nil {
		s.logError("failed to schedule cleanup job", err)
	}

	var extra []jobUsecase.TickFunc
	if s.config.ProcessWebhooks && s.dispatcher != nil {
		extra = append(extra, s.processDeliveries)
	}
	s.queue.StartProcessing(s.config.PollInterval, extra...)
	s.initialized = true

	if s.logger != nil {
		s.logger.Info("event system initialized",
			slog.Int("backlog_replayed", replayed),
			slog.Bool("cleanup_scheduled", created),
			slog.Bool("process_webhooks", len(extra) > 0),
		)
	}
	return nil
}

// Shutdown stops processing and waits for in-flight webhook deliveries until ctx
// is done. It is safe to call when not initialized.
func (s *EventSystem) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}

	s.queue.StopProcessing()
	s.initialized = false

	var err error
	if s.dispatcher != nil {
		if err = s.dispatcher.Wait(ctx); err != nil {
			err = apperrors.Wrap(err, "webhook deliveries still in flight")
		}
	}

	if s.logger != nil {
		s.logger.Info("event system stopped")
	}
	return err
}

// Initialized reports whether the system is running.
func (s *EventSystem) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Bus returns the event bus.
func (s *EventSystem) Bus() eventUsecase.UseCase { return s.bus }

// Queue returns the job queue.
func (s *EventSystem) Queue() jobUsecase.UseCase { return s.queue }

// Dispatcher returns the webhook dispatcher.
func (s *EventSystem) Dispatcher() webhookUsecase.Dispatcher { return s.dispatcher }

func (s *EventSystem) processDeliveries(ctx context.Context) error {
	_, err := s.dispatcher.ProcessDeliveries(ctx)
	return err
}

func (s *EventSystem) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, slog.Any("error", err))
	}
}
