// Package usecase records, lists and requeues dead letters.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/deadletter/domain"
)

// DeadLetterRepository persists dead letters.
type DeadLetterRepository interface {
	Create(ctx context.Context, deadLetter *domain.DeadLetter) error
	Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
	// List returns dead letters newest first. An empty source lists every source.
	List(ctx context.Context, source domain.Source, offset, limit int) ([]*domain.DeadLetter, error)
	MarkRequeued(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Requeuer sends a permanently failed item back to its pipeline.
type Requeuer interface {
	Requeue(ctx context.Context, sourceID uuid.UUID) error
}

// RequeuerFunc adapts a function to Requeuer.
type RequeuerFunc func(ctx context.Context, sourceID uuid.UUID) error

// Requeue calls f.
func (f RequeuerFunc) Requeue(ctx context.Context, sourceID uuid.UUID) error {
	return f(ctx, sourceID)
}

// UseCase is the dead-letter sink.
type UseCase interface {
	Record(ctx context.Context, deadLetter *domain.DeadLetter) error
	List(ctx context.Context, source domain.Source, offset, limit int) ([]*domain.DeadLetter, error)
	Requeue(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
}
