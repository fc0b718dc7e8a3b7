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

// MySQLLedgerRepository stores payments and late fees in MySQL. Duplicate keys are
// detected from the driver error since MySQL has no ON CONFLICT DO NOTHING.
type MySQLLedgerRepository struct {
	db *sql.DB
}

// NewMySQLLedgerRepository creates a new MySQLLedgerRepository.
func NewMySQLLedgerRepository(db *sql.DB) *MySQLLedgerRepository {
	return &MySQLLedgerRepository{db: db}
}

func (r *MySQLLedgerRepository) CreatePayment(ctx context.Context, p *domain.Payment) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO ledger_payments
			  (payment_id, lease_id, payee_user_id, amount_cents, period_due_date, received_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(ctx, query, p.PaymentID, p.LeaseID, p.PayeeUserID,
		p.AmountCents, p.PeriodDueDate, p.ReceivedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to record payment")
	}
	return true, nil
}

func (r *MySQLLedgerRepository) MarkReleased(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`UPDATE ledger_payments SET released_at = ? WHERE payment_id = ? AND released_at IS NULL`,
		at, paymentID)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to release balance")
	}
	return affectedOne(result)
}

func (r *MySQLLedgerRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT payment_id, lease_id, payee_user_id, amount_cents, period_due_date, received_at, released_at
			  FROM ledger_payments WHERE payment_id = ?`

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

func (r *MySQLLedgerRepository) PaymentExistsForPeriod(
	ctx context.Context,
	leaseID string,
	dueDate time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var exists bool
	err := querier.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_payments WHERE lease_id = ? AND period_due_date = ?)`,
		leaseID, dueDate).Scan(&exists)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check payment for period")
	}
	return exists, nil
}

func (r *MySQLLedgerRepository) CreateLateFee(ctx context.Context, fee *domain.LateFee) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	id, err := fee.ID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal late fee id")
	}

	_, err = querier.ExecContext(ctx,
		`INSERT INTO late_fees (id, lease_id, due_date, fee_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, fee.LeaseID, fee.DueDate, fee.FeeCents, fee.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, apperrors.Wrap(err, "failed to create late fee")
	}
	return true, nil
}
