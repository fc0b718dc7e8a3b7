// Package usecase records payments, releases held balances and assesses late fees.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/clock"
	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/ledger/domain"
)

// LedgerRepository persists payments and late fees.
type LedgerRepository interface {
	// CreatePayment reports false when the payment id is already recorded.
	CreatePayment(ctx context.Context, payment *domain.Payment) (bool, error)
	// MarkReleased reports false when the payment was already released.
	MarkReleased(ctx context.Context, paymentID string, at time.Time) (bool, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	PaymentExistsForPeriod(ctx context.Context, leaseID string, dueDate time.Time) (bool, error)
	// CreateLateFee reports false when a fee for the lease and due date exists.
	CreateLateFee(ctx context.Context, fee *domain.LateFee) (bool, error)
}

// LedgerUseCase implements the ledger operations used by event handlers and jobs.
// Every operation is idempotent so job retries are safe.
type LedgerUseCase struct {
	txManager database.TxManager
	repo      LedgerRepository
	clock     clock.Clock
	logger    *slog.Logger
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager database.TxManager,
	repo LedgerRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *LedgerUseCase {
	return &LedgerUseCase{txManager: txManager, repo: repo, clock: clk, logger: logger}
}

// RecordPayment stores a received payment once.
func (uc *LedgerUseCase) RecordPayment(ctx context.Context, input domain.PaymentInput) (bool, error) {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.PaymentID, validation.Required),
		validation.Field(&input.LeaseID, validation.Required),
		validation.Field(&input.PayeeUserID, validation.Required),
		validation.Field(&input.AmountCents, validation.Required, validation.Min(int64(1))),
	)
	if err != nil {
		return false, apperrors.Wrap(domain.ErrInvalidEntry, err.Error())
	}

	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = uc.clock.Now()
	}
	periodDueDate := input.PeriodDueDate
	if periodDueDate.IsZero() {
		periodDueDate = receivedAt
	}

	return uc.repo.CreatePayment(ctx, &domain.Payment{
		PaymentID:     input.PaymentID,
		LeaseID:       input.LeaseID,
		PayeeUserID:   input.PayeeUserID,
		AmountCents:   input.AmountCents,
		PeriodDueDate: domain.PeriodDate(periodDueDate),
		ReceivedAt:    receivedAt.UTC(),
	})
}

// ReleaseBalance makes a held payment available to its payee. It reports whether
// this call performed the release.
func (uc *LedgerUseCase) ReleaseBalance(ctx context.Context, paymentID string) (bool, error) {
	released, err := uc.repo.MarkReleased(ctx, paymentID, uc.clock.Now())
	if err != nil {
		return false, err
	}
	if !released {
		// Distinguish an unknown payment from one released earlier.
		if _, err := uc.repo.GetPayment(ctx, paymentID); err != nil {
			return false, err
		}
		return false, nil
	}

	if uc.logger != nil {
		uc.logger.Info("balance released", slog.String("payment_id", paymentID))
	}
	return true, nil
}

// AssessLateFee charges a late fee unless rent for the period was paid or a fee
// already exists. It reports whether a fee was created.
func (uc *LedgerUseCase) AssessLateFee(ctx context.Context, input domain.LateFeeInput) (bool, error) {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.LeaseID, validation.Required),
		validation.Field(&input.DueDate, validation.Required),
		validation.Field(&input.FeeCents, validation.Required, validation.Min(int64(1))),
	)
	if err != nil {
		return false, apperrors.Wrap(domain.ErrInvalidEntry, err.Error())
	}

	dueDate := domain.PeriodDate(input.DueDate)
	var created bool

	err = uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		paid, err := uc.repo.PaymentExistsForPeriod(ctx, input.LeaseID, dueDate)
		if err != nil {
			return err
		}
		if paid {
			return nil
		}

		created, err = uc.repo.CreateLateFee(ctx, &domain.LateFee{
			ID:        uuid.Must(uuid.NewV7()),
			LeaseID:   input.LeaseID,
			DueDate:   dueDate,
			FeeCents:  input.FeeCents,
			CreatedAt: uc.clock.Now(),
		})
		return err
	})
	if err != nil {
		return false, err
	}

	if created && uc.logger != nil {
		uc.logger.Info("late fee assessed",
			slog.String("lease_id", input.LeaseID),
			slog.Time("due_date", dueDate),
			slog.Int64("fee_cents", input.FeeCents),
		)
	}
	return created, nil
}
