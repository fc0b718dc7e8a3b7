package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/clock"
	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/domain"
)

// Config holds event bus configuration
type Config struct {
	// BacklogBatchSize is the page size used when replaying unprocessed events.
	BacklogBatchSize int
	// BacklogGrace skips events younger than this during replay, leaving them to
	// the publisher that is still dispatching them.
	BacklogGrace time.Duration
}

// EventBus persists every published event and dispatches it synchronously to the
// handlers subscribed to its kind, in subscription order.
type EventBus struct {
	config      Config
	repo        EventRepository
	deadLetters DeadLetterRecorder
	clock       clock.Clock
	logger      *slog.Logger

	mu       sync.RWMutex
	handlers map[domain.Kind][]Handler
}

// NewEventBus creates a new EventBus
func NewEventBus(
	config Config,
	repo EventRepository,
	deadLetters DeadLetterRecorder,
	clk clock.Clock,
	logger *slog.Logger,
) *EventBus {
	if config.BacklogBatchSize <= 0 {
		config.BacklogBatchSize = 100
	}
	return &EventBus{
		config:      config,
		repo:        repo,
		deadLetters: deadLetters,
		clock:       clk,
		logger:      logger,
		handlers:    make(map[domain.Kind][]Handler),
	}
}

// On adapts a handler typed on one payload struct. The handler only runs when the
// event's decoded payload has type P.
func On[P domain.Payload](fn func(ctx context.Context, event *domain.Event, payload P) error) Handler {
	return func(ctx context.Context, event *domain.Event) error {
		payload, ok := event.Data.(P)
		if !ok {
			return fmt.Errorf("event %s: unexpected payload type %T", event.Type, event.Data)
		}
		return fn(ctx, event, payload)
	}
}

// Subscribe registers handler for kind. Handlers registered later run later.
func (b *EventBus) Subscribe(kind domain.Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Copy so that dispatches holding the previous slice are unaffected.
	current := b.handlers[kind]
	next := make([]Handler, len(current), len(current)+1)
	copy(next, current)
	b.handlers[kind] = append(next, handler)
}

// Publish persists the event and dispatches it. Handler failures are isolated and
// logged. A persistence failure is logged and the event is still dispatched in
// memory, but it will not be replayable.
func (b *EventBus) Publish(ctx context.Context, payload domain.Payload) (*domain.Event, error) {
	if err := domain.ValidatePayload(payload); err != nil {
		return nil, err
	}
	payload = domain.ValueOf(payload)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrapf(domain.ErrInvalidPayload, "%s: %v", payload.Kind(), err)
	}

	event := &domain.Event{
		ID:        uuid.Must(uuid.NewV7()),
		Type:      payload.Kind(),
		Payload:   raw,
		Data:      payload,
		CreatedAt: b.clock.Now(),
	}

	persisted := true
	if err := b.repo.Create(ctx, event); err != nil {
		persisted = false
		if b.logger != nil {
			b.logger.Error("failed to persist event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.Type.String()),
				slog.Any("error", err),
			)
		}
	}

	b.dispatch(ctx, event)

	if persisted {
		if err := b.markProcessed(ctx, event); err != nil && b.logger != nil {
			b.logger.Error("failed to mark event processed",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}

	return event, nil
}

// PublishRaw decodes data as the payload of kind and publishes it.
func (b *EventBus) PublishRaw(ctx context.Context, kind string, data json.RawMessage) (*domain.Event, error) {
	payload, err := domain.DecodePayload(domain.Kind(kind), data)
	if err != nil {
		return nil, err
	}
	return b.Publish(ctx, payload)
}

// ProcessBacklog replays unprocessed events, oldest first, and marks each one
// processed. Events whose payload no longer decodes are dead-lettered and marked
// processed so they are not replayed again. It returns the number of events
// dispatched.
func (b *EventBus) ProcessBacklog(ctx context.Context) (int, error) {
	cutoff := b.clock.Now().Add(-b.config.BacklogGrace)
	dispatched := 0

	for {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}

		events, err := b.repo.ListUnprocessed(ctx, cutoff, b.config.BacklogBatchSize)
		if err != nil {
			return dispatched, apperrors.Wrap(err, "failed to list unprocessed events")
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			payload, err := domain.DecodePayload(event.Type, event.Payload)
			if err != nil {
				b.deadLetter(ctx, event, err)
			} else {
				event.Data = payload
				b.dispatch(ctx, event)
				dispatched++
			}

			if err := b.markProcessed(ctx, event); err != nil {
				return dispatched, apperrors.Wrapf(err, "failed to mark event %s processed", event.ID)
			}
		}

		if len(events) < b.config.BacklogBatchSize {
			break
		}
	}

	if b.logger != nil && dispatched > 0 {
		b.logger.Info("event backlog replayed", slog.Int("count", dispatched))
	}
	return dispatched, nil
}

func (b *EventBus) dispatch(ctx context.Context, event *domain.Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for i, handler := range handlers {
		if err := b.invoke(ctx, handler, event); err != nil && b.logger != nil {
			b.logger.Error("event handler failed",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.Type.String()),
				slog.Int("handler", i),
				slog.Any("error", err),
			)
		}
	}
}

func (b *EventBus) invoke(ctx context.Context, handler Handler, event *domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, event)
}

func (b *EventBus) markProcessed(ctx context.Context, event *domain.Event) error {
	now := b.clock.Now()
	if err := b.repo.MarkProcessed(ctx, event.ID, now); err != nil {
		return err
	}
	event.Processed = true
	event.ProcessedAt = &now
	return nil
}

func (b *EventBus) deadLetter(ctx context.Context, event *domain.Event, cause error) {
	if b.logger != nil {
		b.logger.Error("dropping undecodable event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.Type.String()),
			slog.Any("error", cause),
		)
	}
	if b.deadLetters == nil {
		return
	}

	err := b.deadLetters.Record(ctx, &deadLetterDomain.DeadLetter{
		Source:    deadLetterDomain.SourceEvent,
		SourceID:  event.ID,
		Kind:      event.Type.String(),
		Payload:   event.Payload,
		LastError: cause.Error(),
	})
	if err != nil && b.logger != nil {
		b.logger.Error("failed to dead-letter event",
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err),
		)
	}
}
