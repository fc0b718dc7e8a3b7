package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/propflow/internal/clock"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/job/domain"
	ledgerDomain "github.com/allisson/propflow/internal/ledger/domain"
	notificationDomain "github.com/allisson/propflow/internal/notification/domain"
	"github.com/allisson/propflow/internal/realtime"
	webhookDomain "github.com/allisson/propflow/internal/webhook/domain"
)

// Notifier stores in-app notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, input notificationDomain.CreateInput) (*notificationDomain.Notification, error)
}

// Ledger moves held funds and assesses late fees.
type Ledger interface {
	ReleaseBalance(ctx context.Context, paymentID string) (bool, error)
	AssessLateFee(ctx context.Context, input ledgerDomain.LateFeeInput) (bool, error)
}

// WebhookTrigger fans an event out to a tenant's webhook endpoints.
type WebhookTrigger interface {
	Trigger(ctx context.Context, tenantID, eventType string, data any) ([]*webhookDomain.Delivery, error)
}

// Scheduler enqueues follow-up jobs.
type Scheduler interface {
	Schedule(ctx context.Context, input ScheduleInput) (*domain.Job, error)
	ScheduleSuccessor(ctx context.Context, current *domain.Job, input ScheduleInput) (bool, error)
}

// Registrar accepts executors.
type Registrar interface {
	Register(jobType domain.JobType, executor Executor)
}

// CleanupTarget is one table the cleanup job prunes.
type CleanupTarget struct {
	Name   string
	Delete func(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExecutorConfig holds executor configuration
type ExecutorConfig struct {
	RetentionDays   int
	CleanupInterval time.Duration
}

// Executors implements every job type against its collaborators.
type Executors struct {
	config      ExecutorConfig
	notifier    Notifier
	broadcaster realtime.Broadcaster
	ledger      Ledger
	webhooks    WebhookTrigger
	scheduler   Scheduler
	targets     []CleanupTarget
	clock       clock.Clock
	logger      *slog.Logger
}

// NewExecutors creates the executor set. A nil broadcaster disables broadcasts.
func NewExecutors(
	config ExecutorConfig,
	notifier Notifier,
	broadcaster realtime.Broadcaster,
	ledger Ledger,
	webhooks WebhookTrigger,
	scheduler Scheduler,
	targets []CleanupTarget,
	clk clock.Clock,
	logger *slog.Logger,
) *Executors {
	if config.RetentionDays <= 0 {
		config.RetentionDays = 90
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 24 * time.Hour
	}
	if broadcaster == nil {
		broadcaster = realtime.NewNoOpBroadcaster()
	}
	return &Executors{
		config:      config,
		notifier:    notifier,
		broadcaster: broadcaster,
		ledger:      ledger,
		webhooks:    webhooks,
		scheduler:   scheduler,
		targets:     targets,
		clock:       clk,
		logger:      logger,
	}
}

// RegisterAll registers an executor for every job type.
func (e *Executors) RegisterAll(r Registrar) {
	r.Register(domain.JobTypeSendReminder, ExecutorFunc(e.SendReminder))
	r.Register(domain.JobTypeSendNotification, ExecutorFunc(e.SendReminder))
	r.Register(domain.JobTypeReleaseBalance, ExecutorFunc(e.ReleaseBalance))
	r.Register(domain.JobTypeProcessLateFee, ExecutorFunc(e.ProcessLateFee))
	r.Register(domain.JobTypeCleanup, ExecutorFunc(e.Cleanup))
	r.Register(domain.JobTypeProcessWebhook, ExecutorFunc(e.ProcessWebhook))
}

// SendReminder creates the notification and, when a channel is set, broadcasts it.
// Only the notification failing fails the job.
func (e *Executors) SendReminder(ctx context.Context, job *domain.Job) error {
	var payload domain.ReminderPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	notification, err := e.notifier.CreateNotification(ctx, notificationDomain.CreateInput{
		UserID:     payload.RecipientID,
		Type:       payload.Kind,
		Title:      payload.Title,
		Message:    payload.Message,
		ActionURL:  payload.ActionURL,
		Metadata:   payload.Metadata,
		LandlordID: payload.LandlordID,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to create notification")
	}

	if payload.Channel != "" {
		e.broadcast(ctx, payload.Channel, map[string]any{
			"type":           "notification",
			"notificationId": notification.ID.String(),
			"title":          notification.Title,
			"message":        notification.Message,
		})
	}
	return nil
}

// ReleaseBalance releases a held payment and tells the payee.
func (e *Executors) ReleaseBalance(ctx context.Context, job *domain.Job) error {
	var payload domain.ReleaseBalancePayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	released, err := e.ledger.ReleaseBalance(ctx, payload.PaymentID)
	if err != nil {
		return err
	}
	if !released || payload.PayeeUserID == "" {
		return nil
	}

	e.notify(ctx, notificationDomain.CreateInput{
		UserID:  payload.PayeeUserID,
		Type:    "funds_available",
		Title:   "Funds Available",
		Message: fmt.Sprintf("%s from payment %s is now available.", formatCents(payload.AmountCents), payload.PaymentID),
	})
	return nil
}

// ProcessLateFee assesses the fee unless the period was paid, and tells the tenant
// when one is created.
func (e *Executors) ProcessLateFee(ctx context.Context, job *domain.Job) error {
	var payload domain.LateFeePayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	created, err := e.ledger.AssessLateFee(ctx, ledgerDomain.LateFeeInput{
		LeaseID:  payload.LeaseID,
		DueDate:  payload.PeriodDueDate,
		FeeCents: payload.FeeCents,
	})
	if err != nil {
		return err
	}
	if !created || payload.TenantUserID == "" {
		return nil
	}

	e.notify(ctx, notificationDomain.CreateInput{
		UserID: payload.TenantUserID,
		Type:   "late_fee",
		Title:  "Late Fee Applied",
		Message: fmt.Sprintf("A late fee of %s was applied for rent due %s.",
			formatCents(payload.FeeCents), payload.PeriodDueDate.Format(time.DateOnly)),
	})
	e.broadcast(ctx, realtime.TenantChannel(payload.TenantUserID), map[string]any{
		"type":     "late_fee",
		"leaseId":  payload.LeaseID,
		"feeCents": payload.FeeCents,
	})
	return nil
}

// Cleanup prunes every target past retention, then schedules the next run.
func (e *Executors) Cleanup(ctx context.Context, job *domain.Job) error {
	var payload domain.CleanupPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	retention := payload.RetentionDays
	if retention <= 0 {
		retention = e.config.RetentionDays
	}

	now := e.clock.Now()
	cutoff := now.AddDate(0, 0, -retention)

	var errs []error
	for _, target := range e.targets {
		deleted, err := target.Delete(ctx, cutoff)
		if err != nil {
			errs = append(errs, apperrors.Wrapf(err, "cleanup %s", target.Name))
			continue
		}
		if e.logger != nil {
			e.logger.Info("cleanup completed",
				slog.String("target", target.Name),
				slog.Int64("deleted", deleted),
				slog.Time("cutoff", cutoff),
			)
		}
	}
	if err := apperrors.Join(errs...); err != nil {
		return err
	}

	_, err := e.scheduler.ScheduleSuccessor(ctx, job, ScheduleInput{
		Type:         domain.JobTypeCleanup,
		Payload:      payload,
		ScheduledFor: now.Add(e.config.CleanupInterval),
		Priority:     domain.PriorityLow,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to schedule next cleanup")
	}
	return nil
}

// ProcessWebhook triggers the tenant's webhooks.
func (e *Executors) ProcessWebhook(ctx context.Context, job *domain.Job) error {
	var payload domain.WebhookPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	_, err := e.webhooks.Trigger(ctx, payload.TenantID, payload.EventType, payload.Data)
	return err
}

func (e *Executors) notify(ctx context.Context, input notificationDomain.CreateInput) {
	if _, err := e.notifier.CreateNotification(ctx, input); err != nil && e.logger != nil {
		e.logger.Warn("failed to create notification",
			slog.String("user_id", input.UserID),
			slog.String("type", input.Type),
			slog.Any("error", err),
		)
	}
}

func (e *Executors) broadcast(ctx context.Context, channel string, payload any) {
	if err := e.broadcaster.BroadcastNewMessage(ctx, channel, payload); err != nil && e.logger != nil {
		e.logger.Warn("failed to broadcast",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
