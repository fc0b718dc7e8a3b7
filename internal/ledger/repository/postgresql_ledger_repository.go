// Package repository provides PostgreSQL and MySQL persistence for the ledger.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/ledger/domain"
)

// PostgreSQLLedgerRepository stores payments and late fees in PostgreSQL.
type PostgreSQLLedgerRepository struct {
	db *sql.DB
}

// NewPostgreSQLLedgerRepository creates a new PostgreSQLLedgerRepository.
func NewPostgreSQLLedgerRepository(db *sql.DB) *PostgreSQLLedgerRepository {
	return &PostgreSQLLedgerRepository{db: db}
}

func (r *PostgreSQLLedgerRepository) CreatePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO ledger_payments
			  (payment_id, lease_id, payee_user_id, amount_cents, period_due_date, received_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (payment_id) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, p.PaymentID, p.LeaseID, p.PayeeUserID,
		p.AmountCents, p.PeriodDueDate, p.ReceivedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to record payment")
	}
	return affectedOne(result)
}

func (r *PostgreSQLLedgerRepository) MarkReleased(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`UPDATE ledger_payments SET released_at = $1 WHERE payment_id = $2 AND released_at IS NULL`,
		at, paymentID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to release balance")
	}
	return affectedOne(result)
}

func (r *PostgreSQLLedgerRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT payment_id, lease_id, payee_user_id, amount_cents, period_due_date, received_at, released_at
			  FROM ledger_payments WHERE payment_id = $1`

	var p domain.Payment
	err := querier.QueryRowContext(ctx, query, paymentID).Scan(&p.PaymentID, &p.LeaseID, &p.PayeeUserID,
		&p.AmountCents, &p.PeriodDueDate, &p.ReceivedAt, &p.ReleasedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get payment")
	}
	return &p, nil
}

func (r *PostgreSQLLedgerRepository) PaymentExistsForPeriod(
	ctx context.Context,
	leaseID string,
	dueDate time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_payments WHERE lease_id = $1 AND period_due_date = $2)`,
		leaseID, dueDate).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check payment for period")
	}
	return exists, nil
}

func (r *PostgreSQLLedgerRepository) CreateLateFee(ctx context.Context, fee *domain.LateFee) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO late_fees (id, lease_id, due_date, fee_cents, created_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (lease_id, due_date) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, fee.ID, fee.LeaseID, fee.DueDate, fee.FeeCents, fee.CreatedAt)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to create late fee")
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to read affected rows")
	}
	return affected > 0, nil
}
