package handler

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/domain"
	jobDomain "github.com/allisson/propflow/internal/job/domain"
	jobUsecase "github.com/allisson/propflow/internal/job/usecase"
	notificationDomain "github.com/allisson/propflow/internal/notification/domain"
	"github.com/allisson/propflow/internal/realtime"
)

func (h *Handlers) invoiceCreated(ctx context.Context, _ *domain.Event, p domain.InvoiceCreated) error {
	return h.remind(ctx, daysBefore(p.DueDate, 3), jobDomain.ReminderPayload{
		Kind:        "invoice_due",
		RecipientID: p.CustomerUserID,
		Title:       "Invoice Due Soon",
		Message: fmt.Sprintf("An invoice of %s is due on %s.",
			formatCents(p.AmountCents), p.DueDate.Format(dateLayout)),
		ActionURL: "/invoices/" + p.InvoiceID,
		Metadata:  map[string]any{"invoiceId": p.InvoiceID},
	})
}

func (h *Handlers) invoiceOverdue(ctx context.Context, _ *domain.Event, p domain.InvoiceOverdue) error {
	actionURL := "/invoices/" + p.InvoiceID
	return apperrors.Join(
		h.schedule(ctx, jobUsecase.ScheduleInput{
			Type: jobDomain.JobTypeSendNotification,
			Payload: jobDomain.NotificationPayload{
				Kind:        "invoice_overdue",
				RecipientID: p.CustomerUserID,
				Title:       "Invoice Overdue",
				Message: fmt.Sprintf("Your invoice of %s was due on %s.",
					formatCents(p.AmountCents), p.DueDate.Format(dateLayout)),
				ActionURL: actionURL,
				Channel:   realtime.HomeownerChannel(p.CustomerUserID),
				Metadata:  map[string]any{"invoiceId": p.InvoiceID},
			},
			Priority: jobDomain.PriorityHigh,
		}),
		h.remind(ctx, daysAfter(h.clock.Now(), 7), jobDomain.ReminderPayload{
			Kind:        "invoice_overdue",
			RecipientID: p.ContractorUserID,
			Title:       "Invoice Still Unpaid",
			Message:     "An invoice has been overdue for a week. Consider following up with your customer.",
			ActionURL:   actionURL,
			Metadata:    map[string]any{"invoiceId": p.InvoiceID},
		}),
	)
}

func (h *Handlers) invoicePaid(ctx context.Context, _ *domain.Event, p domain.InvoicePaid) error {
	amount := formatCents(p.AmountCents)
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.ContractorUserID,
		Type:      "invoice_paid",
		Title:     "Invoice Paid",
		Message:   fmt.Sprintf("Your invoice of %s has been paid.", amount),
		ActionURL: "/contractor/invoices/" + p.InvoiceID,
		Metadata:  map[string]any{"invoiceId": p.InvoiceID, "paymentId": p.PaymentID},
	})
	h.broadcast(ctx, realtime.ContractorChannel(p.ContractorUserID), map[string]any{
		"type":        "invoice_paid",
		"invoiceId":   p.InvoiceID,
		"amountCents": p.AmountCents,
	})

	return h.schedule(ctx, jobUsecase.ScheduleInput{
		Type: jobDomain.JobTypeReleaseBalance,
		Payload: jobDomain.ReleaseBalancePayload{
			PaymentID:   p.PaymentID,
			PayeeUserID: p.ContractorUserID,
			AmountCents: p.AmountCents,
		},
		ScheduledFor: daysAfter(h.clock.Now(), h.config.PaymentHoldDays),
		Priority:     jobDomain.PriorityHigh,
	})
}

func (h *Handlers) appointmentScheduled(ctx context.Context, _ *domain.Event, p domain.AppointmentScheduled) error {
	title := p.Title
	if title == "" {
		title = "Appointment"
	}
	at := p.ScheduledAt.Format(dateTimeLayout)

	var errs []error
	for _, lead := range []struct {
		before time.Duration
		title  string
	}{
		{before: 24 * time.Hour, title: "Appointment Tomorrow"},
		{before: time.Hour, title: "Appointment in 1 Hour"},
	} {
		for _, recipient := range []string{p.ContractorUserID, p.HomeownerUserID} {
			errs = append(errs, h.remind(ctx, p.ScheduledAt.Add(-lead.before), jobDomain.ReminderPayload{
				Kind:        "appointment",
				RecipientID: recipient,
				Title:       lead.title,
				Message:     fmt.Sprintf("%s on %s.", title, at),
				ActionURL:   "/appointments/" + p.AppointmentID,
				Metadata:    map[string]any{"appointmentId": p.AppointmentID},
			}))
		}
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) appointmentCancelled(ctx context.Context, _ *domain.Event, p domain.AppointmentCancelled) error {
	message := "An appointment was cancelled."
	if p.Reason != "" {
		message = fmt.Sprintf("An appointment was cancelled: %s.", p.Reason)
	}
	for _, recipient := range []string{p.ContractorUserID, p.HomeownerUserID} {
		h.notify(ctx, notificationDomain.CreateInput{
			UserID:    recipient,
			Type:      "appointment_cancelled",
			Title:     "Appointment Cancelled",
			Message:   message,
			ActionURL: "/appointments/" + p.AppointmentID,
			Metadata:  map[string]any{"appointmentId": p.AppointmentID},
		})
	}
	return nil
}

func (h *Handlers) contractorLeadMatched(ctx context.Context, _ *domain.Event, p domain.ContractorLeadMatched) error {
	message := "A new lead matches your services."
	if p.ServiceCategory != "" {
		message = fmt.Sprintf("A new %s lead matches your services.", p.ServiceCategory)
	}
	actionURL := "/contractor/leads/" + p.LeadID

	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.ContractorUserID,
		Type:      "lead_matched",
		Title:     "New Lead Matched",
		Message:   message,
		ActionURL: actionURL,
		Metadata:  map[string]any{"leadId": p.LeadID, "location": p.Location},
	})
	h.broadcast(ctx, realtime.ContractorChannel(p.ContractorUserID), map[string]any{
		"type":   "lead_matched",
		"leadId": p.LeadID,
	})

	return h.remind(ctx, h.clock.Now().Add(4*time.Hour), jobDomain.ReminderPayload{
		Kind:        "lead_follow_up",
		RecipientID: p.ContractorUserID,
		Title:       "Respond to Your Lead",
		Message:     "Leads that get a quick response are more likely to convert.",
		ActionURL:   actionURL,
		Metadata:    map[string]any{"leadId": p.LeadID},
	})
}

func (h *Handlers) contractorQuoteSubmitted(ctx context.Context, _ *domain.Event, p domain.ContractorQuoteSubmitted) error {
	from := p.ContractorName
	if from == "" {
		from = "A contractor"
	}
	actionURL := "/homeowner/quotes/" + p.QuoteID

	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.HomeownerUserID,
		Type:      "quote_submitted",
		Title:     "New Quote Received",
		Message:   fmt.Sprintf("%s sent you a quote for %s.", from, formatCents(p.AmountCents)),
		ActionURL: actionURL,
		Metadata:  map[string]any{"quoteId": p.QuoteID},
	})

	if p.ExpiresAt.IsZero() {
		return nil
	}
	return h.remind(ctx, daysBefore(p.ExpiresAt, 1), jobDomain.ReminderPayload{
		Kind:        "quote_expiring",
		RecipientID: p.HomeownerUserID,
		Title:       "Quote Expires Tomorrow",
		Message:     fmt.Sprintf("The quote from %s expires on %s.", from, p.ExpiresAt.Format(dateLayout)),
		ActionURL:   actionURL,
		Metadata:    map[string]any{"quoteId": p.QuoteID},
	})
}

func (h *Handlers) contractorQuoteAccepted(ctx context.Context, _ *domain.Event, p domain.ContractorQuoteAccepted) error {
	by := p.HomeownerName
	if by == "" {
		by = "A homeowner"
	}
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.ContractorUserID,
		Type:      "quote_accepted",
		Title:     "Quote Accepted",
		Message:   fmt.Sprintf("%s accepted your quote.", by),
		ActionURL: "/contractor/quotes/" + p.QuoteID,
		Metadata:  map[string]any{"quoteId": p.QuoteID},
	})
	h.broadcast(ctx, realtime.ContractorChannel(p.ContractorUserID), map[string]any{
		"type":    "quote_accepted",
		"quoteId": p.QuoteID,
	})
	return nil
}

func (h *Handlers) contractorVerificationExpiring(
	ctx context.Context,
	_ *domain.Event,
	p domain.ContractorVerificationExpiring,
) error {
	var errs []error
	for _, days := range []int{30, 7} {
		errs = append(errs, h.remind(ctx, daysBefore(p.ExpiresAt, days), jobDomain.ReminderPayload{
			Kind:        "verification_expiring",
			RecipientID: p.ContractorUserID,
			Title:       fmt.Sprintf("%s Expires in %d Days", p.DocumentType, days),
			Message: fmt.Sprintf("Your %s expires on %s. Upload a renewed document to stay verified.",
				p.DocumentType, p.ExpiresAt.Format(dateLayout)),
			ActionURL: "/contractor/verification",
			Metadata:  map[string]any{"documentType": p.DocumentType, "daysBefore": days},
		}))
	}
	return apperrors.Join(errs...)
}

func (h *Handlers) jobCompleted(ctx context.Context, _ *domain.Event, p domain.JobCompleted) error {
	by := p.ContractorName
	if by == "" {
		by = "Your contractor"
	}
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.HomeownerUserID,
		Type:      "job_completed",
		Title:     "Job Completed",
		Message:   fmt.Sprintf("%s marked the job as completed.", by),
		ActionURL: "/homeowner/jobs/" + p.JobID,
		Metadata:  map[string]any{"jobId": p.JobID},
	})

	return h.remind(ctx, daysAfter(h.clock.Now(), 2), jobDomain.ReminderPayload{
		Kind:        "review_request",
		RecipientID: p.HomeownerUserID,
		Title:       "How Did It Go?",
		Message:     fmt.Sprintf("Leave a review for %s.", by),
		ActionURL:   "/homeowner/jobs/" + p.JobID + "/review",
		Metadata:    map[string]any{"jobId": p.JobID, "contractorUserId": p.ContractorUserID},
	})
}

func (h *Handlers) inventoryLowStock(ctx context.Context, _ *domain.Event, p domain.InventoryLowStock) error {
	h.notify(ctx, notificationDomain.CreateInput{
		UserID:    p.ContractorUserID,
		Type:      "inventory_low_stock",
		Title:     "Low Stock Alert",
		Message:   fmt.Sprintf("%s is down to %d (threshold %d).", p.ItemName, p.Quantity, p.Threshold),
		ActionURL: "/contractor/inventory/" + p.ItemID,
		Metadata:  map[string]any{"itemId": p.ItemID, "quantity": p.Quantity},
	})
	h.broadcast(ctx, realtime.ContractorChannel(p.ContractorUserID), map[string]any{
		"type":     "inventory_low_stock",
		"itemId":   p.ItemID,
		"quantity": p.Quantity,
	})
	return nil
}

func (h *Handlers) subscriptionTrialEnding(ctx context.Context, _ *domain.Event, p domain.SubscriptionTrialEnding) error {
	plan := p.PlanName
	if plan == "" {
		plan = "Your"
	}
	return h.remind(ctx, daysBefore(p.TrialEndsAt, 3), jobDomain.ReminderPayload{
		Kind:        "trial_ending",
		RecipientID: p.UserID,
		Title:       "Trial Ending Soon",
		Message:     fmt.Sprintf("%s trial ends on %s.", plan, p.TrialEndsAt.Format(dateLayout)),
		ActionURL:   "/settings/billing",
		Metadata:    map[string]any{"subscriptionId": p.SubscriptionID},
	})
}
