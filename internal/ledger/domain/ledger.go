// Package domain defines the rent ledger entries the background jobs act on.
package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// Payment is a received rent payment. Funds are held until ReleasedAt is set.
type Payment struct {
	PaymentID     string
	LeaseID       string
	PayeeUserID   string
	AmountCents   int64
	PeriodDueDate time.Time
	ReceivedAt    time.Time
	ReleasedAt    *time.Time
}

// LateFee is a fee charged once per lease and rent period.
type LateFee struct {
	ID        uuid.UUID
	LeaseID   string
	DueDate   time.Time
	FeeCents  int64
	CreatedAt time.Time
}

// PaymentInput records a received payment.
type PaymentInput struct {
	PaymentID     string
	LeaseID       string
	PayeeUserID   string
	AmountCents   int64
	PeriodDueDate time.Time
	ReceivedAt    time.Time
}

// LateFeeInput assesses a late fee for one rent period.
type LateFeeInput struct {
	LeaseID  string
	DueDate  time.Time
	FeeCents int64
}

var (
	ErrPaymentNotFound = apperrors.Wrap(apperrors.ErrNotFound, "payment not found")
	ErrInvalidEntry    = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid ledger entry")
)

// PeriodDate truncates t to its UTC calendar day, the key rent periods are matched on.
func PeriodDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
