package domain

import (
	"encoding/json"
	"reflect"
	"time"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// Payload is the typed body of an event. Each kind has exactly one payload type.
type Payload interface {
	Kind() Kind
}

type LeaseTenantSigned struct {
	LeaseID         string `json:"leaseId"`
	TenantName      string `json:"tenantName"`
	LandlordUserID  string `json:"landlordUserId"`
	PropertyAddress string `json:"propertyAddress,omitempty"`
}

func (LeaseTenantSigned) Kind() Kind { return KindLeaseTenantSigned }

func (p LeaseTenantSigned) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
	)
}

type LeaseFullyExecuted struct {
	LeaseID        string    `json:"leaseId"`
	TenantUserID   string    `json:"tenantUserId"`
	LandlordUserID string    `json:"landlordUserId"`
	StartDate      time.Time `json:"startDate"`
}

func (LeaseFullyExecuted) Kind() Kind { return KindLeaseFullyExecuted }

func (p LeaseFullyExecuted) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.TenantUserID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
		validation.Field(&p.StartDate, validation.Required),
	)
}

type LeaseExpiring struct {
	LeaseID        string    `json:"leaseId"`
	TenantUserID   string    `json:"tenantUserId"`
	LandlordUserID string    `json:"landlordUserId"`
	EndDate        time.Time `json:"endDate"`
}

func (LeaseExpiring) Kind() Kind { return KindLeaseExpiring }

func (p LeaseExpiring) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
		validation.Field(&p.EndDate, validation.Required),
	)
}

// PaymentReceived is published once a rent payment settles. OrganizationID is the
// webhook tenant; when empty no webhook is triggered.
type PaymentReceived struct {
	PaymentID      string    `json:"paymentId"`
	LeaseID        string    `json:"leaseId"`
	TenantUserID   string    `json:"tenantUserId"`
	LandlordUserID string    `json:"landlordUserId"`
	OrganizationID string    `json:"organizationId,omitempty"`
	AmountCents    int64     `json:"amountCents"`
	PeriodDueDate  time.Time `json:"periodDueDate"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

func (PaymentReceived) Kind() Kind { return KindPaymentReceived }

func (p PaymentReceived) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PaymentID, validation.Required),
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
		validation.Field(&p.AmountCents, validation.Required, validation.Min(int64(1))),
	)
}

type PaymentFailed struct {
	PaymentID    string `json:"paymentId"`
	LeaseID      string `json:"leaseId"`
	TenantUserID string `json:"tenantUserId"`
	AmountCents  int64  `json:"amountCents"`
	Reason       string `json:"reason,omitempty"`
}

func (PaymentFailed) Kind() Kind { return KindPaymentFailed }

func (p PaymentFailed) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PaymentID, validation.Required),
		validation.Field(&p.TenantUserID, validation.Required),
	)
}

type RentDue struct {
	LeaseID        string    `json:"leaseId"`
	TenantUserID   string    `json:"tenantUserId"`
	LandlordUserID string    `json:"landlordUserId"`
	AmountCents    int64     `json:"amountCents"`
	LateFeeCents   int64     `json:"lateFeeCents,omitempty"`
	DueDate        time.Time `json:"dueDate"`
}

func (RentDue) Kind() Kind { return KindRentDue }

func (p RentDue) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.TenantUserID, validation.Required),
		validation.Field(&p.DueDate, validation.Required),
		validation.Field(&p.LateFeeCents, validation.Min(int64(0))),
	)
}

type InvoiceCreated struct {
	InvoiceID        string    `json:"invoiceId"`
	ContractorUserID string    `json:"contractorUserId"`
	CustomerUserID   string    `json:"customerUserId"`
	AmountCents      int64     `json:"amountCents"`
	DueDate          time.Time `json:"dueDate"`
}

func (InvoiceCreated) Kind() Kind { return KindInvoiceCreated }

func (p InvoiceCreated) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.InvoiceID, validation.Required),
		validation.Field(&p.CustomerUserID, validation.Required),
		validation.Field(&p.DueDate, validation.Required),
	)
}

type InvoiceOverdue struct {
	InvoiceID        string    `json:"invoiceId"`
	ContractorUserID string    `json:"contractorUserId"`
	CustomerUserID   string    `json:"customerUserId"`
	AmountCents      int64     `json:"amountCents"`
	DueDate          time.Time `json:"dueDate"`
}

func (InvoiceOverdue) Kind() Kind { return KindInvoiceOverdue }

func (p InvoiceOverdue) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.InvoiceID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
		validation.Field(&p.CustomerUserID, validation.Required),
	)
}

type InvoicePaid struct {
	InvoiceID        string `json:"invoiceId"`
	PaymentID        string `json:"paymentId"`
	ContractorUserID string `json:"contractorUserId"`
	CustomerUserID   string `json:"customerUserId"`
	AmountCents      int64  `json:"amountCents"`
}

func (InvoicePaid) Kind() Kind { return KindInvoicePaid }

func (p InvoicePaid) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.InvoiceID, validation.Required),
		validation.Field(&p.PaymentID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
	)
}

type AppointmentScheduled struct {
	AppointmentID    string    `json:"appointmentId"`
	ContractorUserID string    `json:"contractorUserId"`
	HomeownerUserID  string    `json:"homeownerUserId"`
	Title            string    `json:"title,omitempty"`
	ScheduledAt      time.Time `json:"scheduledAt"`
}

func (AppointmentScheduled) Kind() Kind { return KindAppointmentScheduled }

func (p AppointmentScheduled) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AppointmentID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
		validation.Field(&p.HomeownerUserID, validation.Required),
		validation.Field(&p.ScheduledAt, validation.Required),
	)
}

type AppointmentCancelled struct {
	AppointmentID    string `json:"appointmentId"`
	ContractorUserID string `json:"contractorUserId"`
	HomeownerUserID  string `json:"homeownerUserId"`
	Reason           string `json:"reason,omitempty"`
}

func (AppointmentCancelled) Kind() Kind { return KindAppointmentCancelled }

func (p AppointmentCancelled) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.AppointmentID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
		validation.Field(&p.HomeownerUserID, validation.Required),
	)
}

type ContractorLeadMatched struct {
	LeadID           string `json:"leadId"`
	ContractorUserID string `json:"contractorUserId"`
	ServiceCategory  string `json:"serviceCategory,omitempty"`
	Location         string `json:"location,omitempty"`
}

func (ContractorLeadMatched) Kind() Kind { return KindContractorLeadMatched }

func (p ContractorLeadMatched) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeadID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
	)
}

type ContractorQuoteSubmitted struct {
	QuoteID          string    `json:"quoteId"`
	ContractorUserID string    `json:"contractorUserId"`
	HomeownerUserID  string    `json:"homeownerUserId"`
	ContractorName   string    `json:"contractorName,omitempty"`
	AmountCents      int64     `json:"amountCents"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func (ContractorQuoteSubmitted) Kind() Kind { return KindContractorQuoteSubmitted }

func (p ContractorQuoteSubmitted) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.QuoteID, validation.Required),
		validation.Field(&p.HomeownerUserID, validation.Required),
	)
}

type ContractorQuoteAccepted struct {
	QuoteID          string `json:"quoteId"`
	ContractorUserID string `json:"contractorUserId"`
	HomeownerUserID  string `json:"homeownerUserId"`
	HomeownerName    string `json:"homeownerName,omitempty"`
}

func (ContractorQuoteAccepted) Kind() Kind { return KindContractorQuoteAccepted }

func (p ContractorQuoteAccepted) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.QuoteID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
	)
}

type ContractorVerificationExpiring struct {
	ContractorUserID string    `json:"contractorUserId"`
	DocumentType     string    `json:"documentType"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func (ContractorVerificationExpiring) Kind() Kind { return KindContractorVerificationExpiring }

func (p ContractorVerificationExpiring) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ContractorUserID, validation.Required),
		validation.Field(&p.DocumentType, validation.Required),
		validation.Field(&p.ExpiresAt, validation.Required),
	)
}

type JobCompleted struct {
	JobID            string `json:"jobId"`
	ContractorUserID string `json:"contractorUserId"`
	HomeownerUserID  string `json:"homeownerUserId"`
	ContractorName   string `json:"contractorName,omitempty"`
}

func (JobCompleted) Kind() Kind { return KindJobCompleted }

func (p JobCompleted) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.JobID, validation.Required),
		validation.Field(&p.HomeownerUserID, validation.Required),
	)
}

type MaintenanceRequested struct {
	RequestID       string `json:"requestId"`
	LandlordUserID  string `json:"landlordUserId"`
	TenantUserID    string `json:"tenantUserId"`
	Title           string `json:"title"`
	Urgency         string `json:"urgency,omitempty"`
	PropertyAddress string `json:"propertyAddress,omitempty"`
}

func (MaintenanceRequested) Kind() Kind { return KindMaintenanceRequested }

func (p MaintenanceRequested) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RequestID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
		validation.Field(&p.Urgency, validation.In("low", "normal", "high", "emergency")),
	)
}

type MaintenanceCompleted struct {
	RequestID      string `json:"requestId"`
	TenantUserID   string `json:"tenantUserId"`
	LandlordUserID string `json:"landlordUserId"`
	Title          string `json:"title"`
}

func (MaintenanceCompleted) Kind() Kind { return KindMaintenanceCompleted }

func (p MaintenanceCompleted) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RequestID, validation.Required),
		validation.Field(&p.TenantUserID, validation.Required),
	)
}

type InspectionScheduled struct {
	InspectionID    string    `json:"inspectionId"`
	LandlordUserID  string    `json:"landlordUserId"`
	TenantUserID    string    `json:"tenantUserId"`
	PropertyAddress string    `json:"propertyAddress,omitempty"`
	ScheduledAt     time.Time `json:"scheduledAt"`
}

func (InspectionScheduled) Kind() Kind { return KindInspectionScheduled }

func (p InspectionScheduled) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.InspectionID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
		validation.Field(&p.TenantUserID, validation.Required),
		validation.Field(&p.ScheduledAt, validation.Required),
	)
}

type InventoryLowStock struct {
	ItemID           string `json:"itemId"`
	ContractorUserID string `json:"contractorUserId"`
	ItemName         string `json:"itemName"`
	Quantity         int    `json:"quantity"`
	Threshold        int    `json:"threshold"`
}

func (InventoryLowStock) Kind() Kind { return KindInventoryLowStock }

func (p InventoryLowStock) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ItemID, validation.Required),
		validation.Field(&p.ContractorUserID, validation.Required),
		validation.Field(&p.Quantity, validation.Min(0)),
	)
}

type SubscriptionTrialEnding struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	PlanName       string    `json:"planName,omitempty"`
	TrialEndsAt    time.Time `json:"trialEndsAt"`
}

func (SubscriptionTrialEnding) Kind() Kind { return KindSubscriptionTrialEnding }

func (p SubscriptionTrialEnding) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.SubscriptionID, validation.Required),
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.TrialEndsAt, validation.Required),
	)
}

type TenantMovedOut struct {
	LeaseID        string    `json:"leaseId"`
	TenantUserID   string    `json:"tenantUserId"`
	LandlordUserID string    `json:"landlordUserId"`
	MovedOutAt     time.Time `json:"movedOutAt"`
}

func (TenantMovedOut) Kind() Kind { return KindTenantMovedOut }

func (p TenantMovedOut) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.LeaseID, validation.Required),
		validation.Field(&p.LandlordUserID, validation.Required),
	)
}

// NewPayload returns a zero payload for kind, ready to be unmarshaled into.
func NewPayload(kind Kind) (Payload, error) {
	switch kind {
	case KindLeaseTenantSigned:
		return &LeaseTenantSigned{}, nil
	case KindLeaseFullyExecuted:
		return &LeaseFullyExecuted{}, nil
	case KindLeaseExpiring:
		return &LeaseExpiring{}, nil
	case KindPaymentReceived:
		return &PaymentReceived{}, nil
	case KindPaymentFailed:
		return &PaymentFailed{}, nil
	case KindRentDue:
		return &RentDue{}, nil
	case KindInvoiceCreated:
		return &InvoiceCreated{}, nil
	case KindInvoiceOverdue:
		return &InvoiceOverdue{}, nil
	case KindInvoicePaid:
		return &InvoicePaid{}, nil
	case KindAppointmentScheduled:
		return &AppointmentScheduled{}, nil
	case KindAppointmentCancelled:
		return &AppointmentCancelled{}, nil
	case KindContractorLeadMatched:
		return &ContractorLeadMatched{}, nil
	case KindContractorQuoteSubmitted:
		return &ContractorQuoteSubmitted{}, nil
	case KindContractorQuoteAccepted:
		return &ContractorQuoteAccepted{}, nil
	case KindContractorVerificationExpiring:
		return &ContractorVerificationExpiring{}, nil
	case KindJobCompleted:
		return &JobCompleted{}, nil
	case KindMaintenanceRequested:
		return &MaintenanceRequested{}, nil
	case KindMaintenanceCompleted:
		return &MaintenanceCompleted{}, nil
	case KindInspectionScheduled:
		return &InspectionScheduled{}, nil
	case KindInventoryLowStock:
		return &InventoryLowStock{}, nil
	case KindSubscriptionTrialEnding:
		return &SubscriptionTrialEnding{}, nil
	case KindTenantMovedOut:
		return &TenantMovedOut{}, nil
	}
	return nil, apperrors.Wrapf(ErrUnknownKind, "%q", kind)
}

// DecodePayload decodes raw into the payload type for kind and validates it.
// The returned payload is a value, not a pointer, so handlers can type-assert
// on the struct type.
func DecodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	ptr, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNilPayload
	}
	if err := json.Unmarshal(raw, ptr); err != nil {
		return nil, apperrors.Wrapf(ErrInvalidPayload, "%s: %v", kind, err)
	}

	payload := ValueOf(ptr)
	if v, ok := payload.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, apperrors.Wrapf(ErrInvalidPayload, "%s: %v", kind, err)
		}
	}
	return payload, nil
}

// ValidatePayload runs the payload's own validation rules, if any.
func ValidatePayload(payload Payload) error {
	if payload == nil {
		return ErrNilPayload
	}
	if v := reflect.ValueOf(payload); v.Kind() == reflect.Pointer && v.IsNil() {
		return ErrNilPayload
	}
	if v, ok := ValueOf(payload).(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return apperrors.Wrapf(ErrInvalidPayload, "%s: %v", payload.Kind(), err)
		}
	}
	return nil
}

// ValueOf returns the non-pointer form of p so handlers can type-assert on the
// struct type regardless of how the payload was published.
func ValueOf(p Payload) Payload {
	switch v := p.(type) {
	case *LeaseTenantSigned:
		return *v
	case *LeaseFullyExecuted:
		return *v
	case *LeaseExpiring:
		return *v
	case *PaymentReceived:
		return *v
	case *PaymentFailed:
		return *v
	case *RentDue:
		return *v
	case *InvoiceCreated:
		return *v
	case *InvoiceOverdue:
		return *v
	case *InvoicePaid:
		return *v
	case *AppointmentScheduled:
		return *v
	case *AppointmentCancelled:
		return *v
	case *ContractorLeadMatched:
		return *v
	case *ContractorQuoteSubmitted:
		return *v
	case *ContractorQuoteAccepted:
		return *v
	case *ContractorVerificationExpiring:
		return *v
	case *JobCompleted:
		return *v
	case *MaintenanceRequested:
		return *v
	case *MaintenanceCompleted:
		return *v
	case *InspectionScheduled:
		return *v
	case *InventoryLowStock:
		return *v
	case *SubscriptionTrialEnding:
		return *v
	case *TenantMovedOut:
		return *v
	}
	return p
}
