// Package usecase implements the in-process event bus with a persisted backlog.
package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/event/domain"
)

// EventRepository persists published events.
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	// ListUnprocessed returns unprocessed events created before the cutoff, oldest first.
	ListUnprocessed(ctx context.Context, before time.Time, limit int) ([]*domain.Event, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeadLetterRecorder receives events whose stored payload can no longer be decoded.
type DeadLetterRecorder interface {
	Record(ctx context.Context, deadLetter *deadLetterDomain.DeadLetter) error
}

// Handler reacts to one event. Errors are logged by the bus and never reach the publisher.
type Handler func(ctx context.Context, event *domain.Event) error

// UseCase is the event bus.
type UseCase interface {
	Publish(ctx context.Context, payload domain.Payload) (*domain.Event, error)
	PublishRaw(ctx context.Context, kind string, data json.RawMessage) (*domain.Event, error)
	Subscribe(kind domain.Kind, handler Handler)
	ProcessBacklog(ctx context.Context) (int, error)
}
