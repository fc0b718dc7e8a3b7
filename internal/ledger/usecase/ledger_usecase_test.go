package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/propflow/internal/clock"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/ledger/domain"
)

type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Get(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreatePayment(ctx context.Context, payment *domain.Payment) (bool, error) {
	args := m.Called(ctx, payment)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) MarkReleased(ctx context.Context, paymentID string, at time.Time) (bool, error) {
	args := m.Called(ctx, paymentID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockLedgerRepository) PaymentExistsForPeriod(
	ctx context.Context,
	leaseID string,
	dueDate time.Time,
) (bool, error) {
	args := m.Called(ctx, leaseID, dueDate)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) CreateLateFee(ctx context.Context, fee *domain.LateFee) (bool, error) {
	args := m.Called(ctx, fee)
	return args.Bool(0), args.Error(1)
}

var testNow = time.Date(2026, 2, 6, 9, 30, 0, 0, time.UTC)

func newUseCase() (*LedgerUseCase, *MockTxManager, *MockLedgerRepository) {
	tx := &MockTxManager{}
	repo := &MockLedgerRepository{}
	return NewLedgerUseCase(tx, repo, clock.NewMockClock(testNow), nil), tx, repo
}

func TestLedgerUseCase_RecordPayment(t *testing.T) {
	t.Run("Success_NormalizesPeriod", func(t *testing.T) {
		uc, _, repo := newUseCase()
		repo.On("CreatePayment", mock.Anything, mock.MatchedBy(func(p *domain.Payment) bool {
			return p.PaymentID == "P1" &&
				p.PeriodDueDate.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) &&
				p.ReceivedAt.Equal(testNow)
		})).Return(true, nil).Once()

		created, err := uc.RecordPayment(context.Background(), domain.PaymentInput{
			PaymentID:     "P1",
			LeaseID:       "L1",
			PayeeUserID:   "U1",
			AmountCents:   150000,
			PeriodDueDate: time.Date(2026, 2, 1, 17, 45, 0, 0, time.UTC),
		})

		require.NoError(t, err)
		assert.True(t, created)
		repo.AssertExpectations(t)
	})

	t.Run("Error_Invalid", func(t *testing.T) {
		uc, _, _ := newUseCase()

		_, err := uc.RecordPayment(context.Background(), domain.PaymentInput{PaymentID: "P1"})

		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})
}

func TestLedgerUseCase_ReleaseBalance(t *testing.T) {
	t.Run("Success_Released", func(t *testing.T) {
		uc, _, repo := newUseCase()
		repo.On("MarkReleased", mock.Anything, "P1", testNow).Return(true, nil).Once()

		released, err := uc.ReleaseBalance(context.Background(), "P1")

		require.NoError(t, err)
		assert.True(t, released)
	})

	t.Run("Success_AlreadyReleased", func(t *testing.T) {
		uc, _, repo := newUseCase()
		repo.On("MarkReleased", mock.Anything, "P1", testNow).Return(false, nil).Once()
		repo.On("GetPayment", mock.Anything, "P1").Return(&domain.Payment{PaymentID: "P1"}, nil).Once()

		released, err := uc.ReleaseBalance(context.Background(), "P1")

		require.NoError(t, err)
		assert.False(t, released)
	})

	t.Run("Error_UnknownPayment", func(t *testing.T) {
		uc, _, repo := newUseCase()
		repo.On("MarkReleased", mock.Anything, "P9", testNow).Return(false, nil).Once()
		repo.On("GetPayment", mock.Anything, "P9").Return(nil, domain.ErrPaymentNotFound).Once()

		_, err := uc.ReleaseBalance(context.Background(), "P9")

		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})
}

func TestLedgerUseCase_AssessLateFee(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	input := domain.LateFeeInput{LeaseID: "L1", DueDate: due, FeeCents: 5000}

	t.Run("Success_Created", func(t *testing.T) {
		uc, tx, repo := newUseCase()
		tx.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("PaymentExistsForPeriod", mock.Anything, "L1", due).Return(false, nil).Once()
		repo.On("CreateLateFee", mock.Anything, mock.MatchedBy(func(f *domain.LateFee) bool {
			return f.LeaseID == "L1" && f.DueDate.Equal(due) && f.FeeCents == 5000
		})).Return(true, nil).Once()

		created, err := uc.AssessLateFee(context.Background(), input)

		require.NoError(t, err)
		assert.True(t, created)
		repo.AssertExpectations(t)
	})

	t.Run("Success_SkippedWhenPaid", func(t *testing.T) {
		uc, tx, repo := newUseCase()
		tx.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("PaymentExistsForPeriod", mock.Anything, "L1", due).Return(true, nil).Once()

		created, err := uc.AssessLateFee(context.Background(), input)

		require.NoError(t, err)
		assert.False(t, created)
		repo.AssertNotCalled(t, "CreateLateFee", mock.Anything, mock.Anything)
	})

	t.Run("Error_Repository", func(t *testing.T) {
		uc, tx, repo := newUseCase()
		tx.On("WithTx", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("PaymentExistsForPeriod", mock.Anything, "L1", due).Return(false, errors.New("db down")).Once()

		_, err := uc.AssessLateFee(context.Background(), input)

		assert.Error(t, err)
	})

	t.Run("Error_Invalid", func(t *testing.T) {
		uc, _, _ := newUseCase()

		_, err := uc.AssessLateFee(context.Background(), domain.LateFeeInput{LeaseID: "L1"})

		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	})
}
