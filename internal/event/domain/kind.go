// Package domain defines the domain event kinds, their typed payloads and the
// persisted event record.
package domain

// Kind is the closed set of domain event kinds the bus dispatches on.
type Kind string

const (
	KindLeaseTenantSigned              Kind = "lease.tenant_signed"
	KindLeaseFullyExecuted             Kind = "lease.fully_executed"
	KindLeaseExpiring                  Kind = "lease.expiring"
	KindPaymentReceived                Kind = "payment.received"
	KindPaymentFailed                  Kind = "payment.failed"
	KindRentDue                        Kind = "rent.due"
	KindInvoiceCreated                 Kind = "invoice.created"
	KindInvoiceOverdue                 Kind = "invoice.overdue"
	KindInvoicePaid                    Kind = "invoice.paid"
	KindAppointmentScheduled           Kind = "appointment.scheduled"
	KindAppointmentCancelled           Kind = "appointment.cancelled"
	KindContractorLeadMatched          Kind = "contractor.lead_matched"
	KindContractorQuoteSubmitted       Kind = "contractor.quote_submitted"
	KindContractorQuoteAccepted        Kind = "contractor.quote_accepted"
	KindContractorVerificationExpiring Kind = "contractor.verification_expiring"
	KindJobCompleted                   Kind = "job.completed"
	KindMaintenanceRequested           Kind = "maintenance.requested"
	KindMaintenanceCompleted           Kind = "maintenance.completed"
	KindInspectionScheduled            Kind = "inspection.scheduled"
	KindInventoryLowStock              Kind = "inventory.low_stock"
	KindSubscriptionTrialEnding        Kind = "subscription.trial_ending"
	KindTenantMovedOut                 Kind = "tenant.moved_out"
)

var kinds = []Kind{
	KindLeaseTenantSigned,
	KindLeaseFullyExecuted,
	KindLeaseExpiring,
	KindPaymentReceived,
	KindPaymentFailed,
	KindRentDue,
	KindInvoiceCreated,
	KindInvoiceOverdue,
	KindInvoicePaid,
	KindAppointmentScheduled,
	KindAppointmentCancelled,
	KindContractorLeadMatched,
	KindContractorQuoteSubmitted,
	KindContractorQuoteAccepted,
	KindContractorVerificationExpiring,
	KindJobCompleted,
	KindMaintenanceRequested,
	KindMaintenanceCompleted,
	KindInspectionScheduled,
	KindInventoryLowStock,
	KindSubscriptionTrialEnding,
	KindTenantMovedOut,
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	return string(k)
}
