package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/clock"
	"github.com/allisson/propflow/internal/database"
	"github.com/allisson/propflow/internal/deadletter/domain"
	apperrors "github.com/allisson/propflow/internal/errors"
)

// DeadLetterUseCase implements UseCase. Requeuers are registered per source after
// construction because the job queue and the dispatcher both record into this sink.
type DeadLetterUseCase struct {
	txManager database.TxManager
	repo      DeadLetterRepository
	clock     clock.Clock
	logger    *slog.Logger

	mu        sync.RWMutex
	requeuers map[domain.Source]Requeuer
}

// NewDeadLetterUseCase creates a DeadLetterUseCase.
func NewDeadLetterUseCase(
	txManager database.TxManager,
	repo DeadLetterRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *DeadLetterUseCase {
	return &DeadLetterUseCase{
		txManager: txManager,
		repo:      repo,
		clock:     clk,
		logger:    logger,
		requeuers: make(map[domain.Source]Requeuer),
	}
}

// RegisterRequeuer makes dead letters of source requeueable.
func (uc *DeadLetterUseCase) RegisterRequeuer(source domain.Source, requeuer Requeuer) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.requeuers[source] = requeuer
}

// Record stores a dead letter, assigning an ID and timestamp when missing.
func (uc *DeadLetterUseCase) Record(ctx context.Context, deadLetter *domain.DeadLetter) error {
	if !deadLetter.Source.Valid() {
		return domain.ErrInvalidSource
	}
	if deadLetter.ID == uuid.Nil {
		deadLetter.ID = uuid.Must(uuid.NewV7())
	}
	if deadLetter.CreatedAt.IsZero() {
		deadLetter.CreatedAt = uc.clock.Now()
	}

	if err := uc.repo.Create(ctx, deadLetter); err != nil {
		return apperrors.Wrap(err, "failed to record dead letter")
	}

	if uc.logger != nil {
		uc.logger.Warn("dead letter recorded",
			slog.String("dead_letter_id", deadLetter.ID.String()),
			slog.String("source", string(deadLetter.Source)),
			slog.String("source_id", deadLetter.SourceID.String()),
			slog.String("kind", deadLetter.Kind),
			slog.Int("attempts", deadLetter.Attempts),
			slog.String("last_error", deadLetter.LastError),
		)
	}
	return nil
}

// List returns dead letters, newest first.
func (uc *DeadLetterUseCase) List(
	ctx context.Context,
	source domain.Source,
	offset, limit int,
) ([]*domain.DeadLetter, error) {
	if source != "" && !source.Valid() {
		return nil, domain.ErrInvalidSource
	}
	return uc.repo.List(ctx, source, offset, limit)
}

// Requeue hands the dead letter back to its source and stamps RequeuedAt, both in
// one transaction. A dead letter can be requeued once; if the item fails again a
// new dead letter is recorded.
func (uc *DeadLetterUseCase) Requeue(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	var deadLetter *domain.DeadLetter

	err := uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		dl, err := uc.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if dl.RequeuedAt != nil {
			return domain.ErrAlreadyRequeued
		}

		uc.mu.RLock()
		requeuer, ok := uc.requeuers[dl.Source]
		uc.mu.RUnlock()
		if !ok {
			return domain.ErrNotRequeueable
		}

		if err := requeuer.Requeue(ctx, dl.SourceID); err != nil {
			return apperrors.Wrapf(err, "failed to requeue %s %s", dl.Source, dl.SourceID)
		}

		now := uc.clock.Now()
		if err := uc.repo.MarkRequeued(ctx, dl.ID, now); err != nil {
			return err
		}
		dl.RequeuedAt = &now
		deadLetter = dl
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.logger != nil {
		uc.logger.Info("dead letter requeued",
			slog.String("dead_letter_id", deadLetter.ID.String()),
			slog.String("source", string(deadLetter.Source)),
			slog.String("source_id", deadLetter.SourceID.String()),
		)
	}
	return deadLetter, nil
}
