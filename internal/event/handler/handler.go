// Package handler maps every event kind to the side effects it triggers: in-app
// notifications, realtime broadcasts and scheduled background jobs.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/propflow/internal/clock"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/domain"
	eventUsecase "github.com/allisson/propflow/internal/event/usecase"
	jobDomain "github.com/allisson/propflow/internal/job/domain"
	jobUsecase "github.com/allisson/propflow/internal/job/usecase"
	ledgerDomain "github.com/allisson/propflow/internal/ledger/domain"
	notificationDomain "github.com/allisson/propflow/internal/notification/domain"
	"github.com/allisson/propflow/internal/realtime"
)

const (
	dateLayout     = "January 2, 2006"
	dateTimeLayout = "January 2, 2006 at 3:04 PM MST"
)

// Scheduler enqueues background jobs.
type Scheduler interface {
	Schedule(ctx context.Context, input jobUsecase.ScheduleInput) (*jobDomain.Job, error)
	ScheduleReminder(
		ctx context.Context,
		kind, recipientID string,
		when time.Time,
		payload jobDomain.ReminderPayload,
	) (*jobDomain.Job, error)
}

// Notifier stores in-app notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, input notificationDomain.CreateInput) (*notificationDomain.Notification, error)
}

// PaymentRecorder stores received payments so their funds can be held.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, input ledgerDomain.PaymentInput) (bool, error)
}

// Subscriber accepts handlers. The event bus implements it.
type Subscriber interface {
	Subscribe(kind domain.Kind, handler eventUsecase.Handler)
}

// Config holds handler configuration
type Config struct {
	// PaymentHoldDays delays the release of received funds.
	PaymentHoldDays int
	// LateFeeGraceDays is how long after the due date a late fee is assessed.
	LateFeeGraceDays int
}

// Handlers holds the collaborators every handler in the table uses.
type Handlers struct {
	config      Config
	jobs        Scheduler
	notifier    Notifier
	broadcaster realtime.Broadcaster
	payments    PaymentRecorder
	clock       clock.Clock
	logger      *slog.Logger
}

// New creates the handler set. A nil broadcaster disables broadcasts.
func New(
	config Config,
	jobs Scheduler,
	notifier Notifier,
	broadcaster realtime.Broadcaster,
	payments PaymentRecorder,
	clk clock.Clock,
	logger *slog.Logger,
) *Handlers {
	if config.PaymentHoldDays < 0 {
		config.PaymentHoldDays = 0
	}
	if config.LateFeeGraceDays < 0 {
		config.LateFeeGraceDays = 0
	}
	if broadcaster == nil {
		broadcaster = realtime.NewNoOpBroadcaster()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		config:      config,
		jobs:        jobs,
		notifier:    notifier,
		broadcaster: broadcaster,
		payments:    payments,
		clock:       clk,
		logger:      logger,
	}
}

// Table returns the handler for every event kind.
func (h *Handlers) Table() map[domain.Kind]eventUsecase.Handler {
	return map[domain.Kind]eventUsecase.Handler{
		domain.KindLeaseTenantSigned:              eventUsecase.On(h.leaseTenantSigned),
		domain.KindLeaseFullyExecuted:             eventUsecase.On(h.leaseFullyExecuted),
		domain.KindLeaseExpiring:                  eventUsecase.On(h.leaseExpiring),
		domain.KindPaymentReceived:                eventUsecase.On(h.paymentReceived),
		domain.KindPaymentFailed:                  eventUsecase.On(h.paymentFailed),
		domain.KindRentDue:                        eventUsecase.On(h.rentDue),
		domain.KindInvoiceCreated:                 eventUsecase.On(h.invoiceCreated),
		domain.KindInvoiceOverdue:                 eventUsecase.On(h.invoiceOverdue),
		domain.KindInvoicePaid:                    eventUsecase.On(h.invoicePaid),
		domain.KindAppointmentScheduled:           eventUsecase.On(h.appointmentScheduled),
		domain.KindAppointmentCancelled:           eventUsecase.On(h.appointmentCancelled),
		domain.KindContractorLeadMatched:          eventUsecase.On(h.contractorLeadMatched),
		domain.KindContractorQuoteSubmitted:       eventUsecase.On(h.contractorQuoteSubmitted),
		domain.KindContractorQuoteAccepted:        eventUsecase.On(h.contractorQuoteAccepted),
		domain.KindContractorVerificationExpiring: eventUsecase.On(h.contractorVerificationExpiring),
		domain.KindJobCompleted:                   eventUsecase.On(h.jobCompleted),
		domain.KindMaintenanceRequested:           eventUsecase.On(h.maintenanceRequested),
		domain.KindMaintenanceCompleted:           eventUsecase.On(h.maintenanceCompleted),
		domain.KindInspectionScheduled:            eventUsecase.On(h.inspectionScheduled),
		domain.KindInventoryLowStock:              eventUsecase.On(h.inventoryLowStock),
		domain.KindSubscriptionTrialEnding:        eventUsecase.On(h.subscriptionTrialEnding),
		domain.KindTenantMovedOut:                 eventUsecase.On(h.tenantMovedOut),
	}
}

// Register subscribes the table on s in kind declaration order. It fails when a
// kind has no handler, before subscribing anything.
func (h *Handlers) Register(s Subscriber) error {
	table := h.Table()
	for _, kind := range domain.Kinds() {
		if _, ok := table[kind]; !ok {
			return fmt.Errorf("no handler for event kind %q", kind)
		}
	}
	for _, kind := range domain.Kinds() {
		s.Subscribe(kind, table[kind])
	}
	return nil
}

// remind schedules a send_reminder job. Times in the past run on the next tick.
func (h *Handlers) remind(ctx context.Context, when time.Time, payload jobDomain.ReminderPayload) error {
	if _, err := h.jobs.ScheduleReminder(ctx, payload.Kind, payload.RecipientID, when, payload); err != nil {
		return apperrors.Wrapf(err, "failed to schedule %s reminder", payload.Kind)
	}
	return nil
}

func (h *Handlers) schedule(ctx context.Context, input jobUsecase.ScheduleInput) error {
	if _, err := h.jobs.Schedule(ctx, input); err != nil {
		return apperrors.Wrapf(err, "failed to schedule %s job", input.Type)
	}
	return nil
}

// notify creates an in-app notification. Failures are logged only.
func (h *Handlers) notify(ctx context.Context, input notificationDomain.CreateInput) {
	if input.UserID == "" {
		return
	}
	if _, err := h.notifier.CreateNotification(ctx, input); err != nil {
		h.logger.Warn("failed to create notification",
			slog.String("user_id", input.UserID),
			slog.String("type", input.Type),
			slog.Any("error", err),
		)
	}
}

// broadcast pushes a realtime message. Failures are logged only.
func (h *Handlers) broadcast(ctx context.Context, channel string, payload map[string]any) {
	if err := h.broadcaster.BroadcastNewMessage(ctx, channel, payload); err != nil {
		h.logger.Warn("failed to broadcast",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
}

func daysBefore(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, -days)
}

func daysAfter(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
