package handler

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/domain"
	jobDomain "github.com/allisson/propflow/internal/job/domain"
	jobUsecase "github.com/allisson/propflow/internal/job/usecase"
	ledgerDomain "github.com/allisson/propflow/internal/ledger/domain"
	notificationDomain "github.com/allisson/propflow/internal/notification/domain"
	"github.com/allisson/propflow/internal/realtime"
)

func (h *Handlers) leaseTenantSigned(ctx context.Context, event *domain.Event, p domain.LeaseTenantSigned) error {
	actionURL := "/landlord/leases/" + p.LeaseID
	message := fmt.Sprintf("%s has signed the lease and is waiting for your signature.", p.TenantName)
	if p.TenantName == "" {
		message = "Your tenant has signed the lease and is waiting for your signature."
	}

	h.notify(ctx, notificationDomain.CreateInput{
		UserID:     p.LandlordUserID,
		Type:       "lease_signature",
		Title:      "Lease Awaiting Your Signature",
		Message:    message,
		ActionURL:  actionURL,
		Metadata:   map[string]any{"leaseId": p.LeaseID},
		LandlordID: p.LandlordUserID,
	})
	h.broadcast(ctx, realtime.LandlordChannel(p.LandlordUserID), map[string]any{
		"type":       "lease_signed",
		"leaseId":    p.LeaseID,
		"tenantName": p.TenantName,
	})

	return h.remind(ctx, h.clock.Now().Add(24*time.Hour), jobDomain.ReminderPayload{
		Kind:        "lease_signature",
		RecipientID: p.LandlordUserID,
		Title:       "Reminder: Lease Awaiting Your Signature",
		Message:     message,
		ActionURL:   actionURL,
		LandlordID:  p.LandlordUserID,
		Metadata:    map[string]any{"leaseId": p.LeaseID, "eventId": event.ID.String()},
	})
}

func (h *Handlers) leaseFullyExecuted(ctx context.Context, _ *domain.Event, p domain.LeaseFullyExecuted) error {
	for _, userID := range []string{p.TenantUserID, p.LandlordUserID} {
		h.notify(ctx, notificationDomain.CreateInput{
			UserID:     userID,
			Type:       "lease_executed",
			Title:      "Lease Fully Executed",
			Message:    "All parties have signed the lease.",
			ActionURL:  "/leases/" + p.LeaseID,
			Metadata:   map[string]any{"leaseId": p.LeaseID},
			LandlordID: p.LandlordUserID,
		})
	}

	return h.remind(ctx, daysBefore(p.StartDate, 7), jobDomain.ReminderPayload{
		Kind:        "move_in",
		RecipientID: p.TenantUserID,
		Title:       "Move-In Coming Up",
		Message:     fmt.Sprintf("Your lease starts on %s.", p.StartDate.Format(dateLayout)),
		ActionURL:   "/tenant/leases/" + p.LeaseID,
		LandlordID:  p.LandlordUserID,
	})
}

func (h *Handlers) leaseExpiring(ctx context.Context, _ *domain.Event, p domain.LeaseExpiring) error {
	message := fmt.Sprintf("The lease ends on %s.", p.EndDate.Format(dateLayout))
	renewal := func(recipient string, days int) error {
		return h.remind(ctx, daysBefore(p.EndDate, days), jobDomain.ReminderPayload{
			Kind:        "lease_renewal",
			RecipientID: recipient,
			Title:       fmt.Sprintf("Lease Expires in %d Days", days),
			Message:     message,
			ActionURL:   "/leases/" + p.LeaseID,
			LandlordID:  p.LandlordUserID,
			Metadata:    map[string]any{"leaseId": p.LeaseID, "daysBefore": days},
		})
	}

	errs := []error{
		renewal(p.LandlordUserID, 60),
		renewal(p.LandlordUserID, 30),
	}
	if p.TenantUserID != "" {
		errs = append(errs, renewal(p.TenantUserID, 30))
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) paymentReceived(ctx context.Context, event *domain.Event, p domain.PaymentReceived) error {
	recorded, err := h.payments.RecordPayment(ctx, ledgerDomain.PaymentInput{
		PaymentID:     p.PaymentID,
		LeaseID:       p.LeaseID,
		PayeeUserID:   p.LandlordUserID,
		AmountCents:   p.AmountCents,
		PeriodDueDate: p.PeriodDueDate,
		ReceivedAt:    p.ReceivedAt,
	})
	if err != nil {
		return apperrors.Wrap(err, "failed to record payment")
	}

	amount := formatCents(p.AmountCents)
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:     p.LandlordUserID,
		Type:       "payment_received",
		Title:      "Payment Received",
		Message:    fmt.Sprintf("A rent payment of %s was received.", amount),
		ActionURL:  "/landlord/payments/" + p.PaymentID,
		Metadata:   map[string]any{"paymentId": p.PaymentID, "leaseId": p.LeaseID},
		LandlordID: p.LandlordUserID,
	})
	h.broadcast(ctx, realtime.LandlordChannel(p.LandlordUserID), map[string]any{
		"type":        "payment_received",
		"paymentId":   p.PaymentID,
		"amountCents": p.AmountCents,
	})

	var errs []error
	if recorded {
		errs = append(errs, h.schedule(ctx, jobUsecase.ScheduleInput{
			Type: jobDomain.JobTypeReleaseBalance,
			Payload: jobDomain.ReleaseBalancePayload{
				PaymentID:   p.PaymentID,
				PayeeUserID: p.LandlordUserID,
				AmountCents: p.AmountCents,
			},
			ScheduledFor: daysAfter(h.clock.Now(), h.config.PaymentHoldDays),
			Priority:     jobDomain.PriorityHigh,
		}))
	}
	if p.OrganizationID != "" {
		errs = append(errs, h.schedule(ctx, jobUsecase.ScheduleInput{
			Type: jobDomain.JobTypeProcessWebhook,
			Payload: jobDomain.WebhookPayload{
				TenantID:  p.OrganizationID,
				EventType: "payment.completed",
				Data:      event.Payload,
			},
			Priority: jobDomain.PriorityHigh,
		}))
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) paymentFailed(ctx context.Context, _ *domain.Event, p domain.PaymentFailed) error {
	message := "Your rent payment could not be processed. Please update your payment method."
	if p.Reason != "" {
		message = fmt.Sprintf("Your rent payment could not be processed: %s.", p.Reason)
	}

	return apperrors.Join(
		h.schedule(ctx, jobUsecase.ScheduleInput{
			Type: jobDomain.JobTypeSendNotification,
			Payload: jobDomain.NotificationPayload{
				Kind:        "payment_failed",
				RecipientID: p.TenantUserID,
				Title:       "Payment Failed",
				Message:     message,
				ActionURL:   "/tenant/payments",
				Channel:     realtime.TenantChannel(p.TenantUserID),
				Metadata:    map[string]any{"paymentId": p.PaymentID},
			},
			Priority: jobDomain.PriorityHigh,
		}),
		h.remind(ctx, daysAfter(h.clock.Now(), 1), jobDomain.ReminderPayload{
			Kind:        "payment_retry",
			RecipientID: p.TenantUserID,
			Title:       "Retry Your Rent Payment",
			Message:     "Your last rent payment failed. Please try again.",
			ActionURL:   "/tenant/payments",
			Metadata:    map[string]any{"paymentId": p.PaymentID},
		}),
	)
}

func (h *Handlers) rentDue(ctx context.Context, _ *domain.Event, p domain.RentDue) error {
	errs := []error{
		h.remind(ctx, daysBefore(p.DueDate, 3), jobDomain.ReminderPayload{
			Kind:        "rent_due",
			RecipientID: p.TenantUserID,
			Title:       "Rent Due Soon",
			Message: fmt.Sprintf("Rent of %s is due on %s.",
				formatCents(p.AmountCents), p.DueDate.Format(dateLayout)),
			ActionURL:  "/tenant/payments",
			Channel:    realtime.TenantChannel(p.TenantUserID),
			LandlordID: p.LandlordUserID,
			Metadata:   map[string]any{"leaseId": p.LeaseID},
		}),
	}
	if p.LateFeeCents > 0 {
		errs = append(errs, h.schedule(ctx, jobUsecase.ScheduleInput{
			Type: jobDomain.JobTypeProcessLateFee,
			Payload: jobDomain.LateFeePayload{
				LeaseID:       p.LeaseID,
				TenantUserID:  p.TenantUserID,
				PeriodDueDate: ledgerDomain.PeriodDate(p.DueDate),
				FeeCents:      p.LateFeeCents,
			},
			ScheduledFor: daysAfter(p.DueDate, h.config.LateFeeGraceDays),
		}))
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) inspectionScheduled(ctx context.Context, _ *domain.Event, p domain.InspectionScheduled) error {
	when := p.ScheduledAt.Add(-24 * time.Hour)
	message := fmt.Sprintf("An inspection is scheduled for %s.", p.ScheduledAt.Format(dateTimeLayout))
	if p.PropertyAddress != "" {
		message = fmt.Sprintf("An inspection at %s is scheduled for %s.",
			p.PropertyAddress, p.ScheduledAt.Format(dateTimeLayout))
	}

	var errs []error
	for _, recipient := range []string{p.TenantUserID, p.LandlordUserID} {
		errs = append(errs, h.remind(ctx, when, jobDomain.ReminderPayload{
			Kind:        "inspection",
			RecipientID: recipient,
			Title:       "Inspection Tomorrow",
			Message:     message,
			LandlordID:  p.LandlordUserID,
			Metadata:    map[string]any{"inspectionId": p.InspectionID},
		}))
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) maintenanceRequested(ctx context.Context, _ *domain.Event, p domain.MaintenanceRequested) error {
	message := fmt.Sprintf("New maintenance request: %s.", p.Title)
	if p.PropertyAddress != "" {
		message = fmt.Sprintf("New maintenance request at %s: %s.", p.PropertyAddress, p.Title)
	}
	actionURL := "/landlord/maintenance/" + p.RequestID

	h.notify(ctx, notificationDomain.CreateInput{
		UserID:     p.LandlordUserID,
		Type:       "maintenance_request",
		Title:      "New Maintenance Request",
		Message:    message,
		ActionURL:  actionURL,
		Metadata:   map[string]any{"requestId": p.RequestID, "urgency": p.Urgency},
		LandlordID: p.LandlordUserID,
	})
	h.broadcast(ctx, realtime.LandlordChannel(p.LandlordUserID), map[string]any{
		"type":      "maintenance_requested",
		"requestId": p.RequestID,
		"urgency":   p.Urgency,
	})

	return h.remind(ctx, h.clock.Now().Add(48*time.Hour), jobDomain.ReminderPayload{
		Kind:        "maintenance_follow_up",
		RecipientID: p.LandlordUserID,
		Title:       "Maintenance Request Pending",
		Message:     fmt.Sprintf("The maintenance request %q is still open.", p.Title),
		ActionURL:   actionURL,
		LandlordID:  p.LandlordUserID,
	})
}

func (h *Handlers) maintenanceCompleted(ctx context.Context, _ *domain.Event, p domain.MaintenanceCompleted) error {
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:     p.TenantUserID,
		Type:       "maintenance_completed",
		Title:      "Maintenance Completed",
		Message:    fmt.Sprintf("Your maintenance request %q has been completed.", p.Title),
		ActionURL:  "/tenant/maintenance/" + p.RequestID,
		Metadata:   map[string]any{"requestId": p.RequestID},
		LandlordID: p.LandlordUserID,
	})
	return nil
}

func (h *Handlers) tenantMovedOut(ctx context.Context, _ *domain.Event, p domain.TenantMovedOut) error {
	movedOut := p.MovedOutAt
	if movedOut.IsZero() {
		movedOut = h.clock.Now()
	}
	return h.remind(ctx, daysAfter(movedOut, 14), jobDomain.ReminderPayload{
		Kind:        "deposit_return",
		RecipientID: p.LandlordUserID,
		Title:       "Return Security Deposit",
		Message:     "Your tenant moved out two weeks ago. Make sure the security deposit has been returned.",
		ActionURL:   "/landlord/leases/" + p.LeaseID,
		LandlordID:  p.LandlordUserID,
		Metadata:    map[string]any{"leaseId": p.LeaseID, "tenantUserId": p.TenantUserID},
	})
}
