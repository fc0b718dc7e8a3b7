package domain

import (
	"encoding/json"
	"time"
)

// ReminderPayload drives send_reminder and send_notification jobs. Kind is a short
// tag such as "lease_signature" used as the notification type.
type ReminderPayload struct {
	Kind        string         `json:"kind"`
	RecipientID string         `json:"recipientId"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	ActionURL   string         `json:"actionUrl,omitempty"`
	Channel     string         `json:"channel,omitempty"`
	LandlordID  string         `json:"landlordId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NotificationPayload is an immediate in-app notification.
type NotificationPayload = ReminderPayload

// ReleaseBalancePayload releases a held payment to its payee.
type ReleaseBalancePayload struct {
	PaymentID   string `json:"paymentId"`
	PayeeUserID string `json:"payeeUserId"`
	AmountCents int64  `json:"amountCents"`
}

// LateFeePayload assesses a late fee when rent for the period is still unpaid.
type LateFeePayload struct {
	LeaseID       string    `json:"leaseId"`
	TenantUserID  string    `json:"tenantUserId"`
	PeriodDueDate time.Time `json:"periodDueDate"`
	FeeCents      int64     `json:"feeCents"`
}

// CleanupPayload sets retention for the cleanup job. Zero means the configured default.
type CleanupPayload struct {
	RetentionDays int `json:"retentionDays,omitempty"`
}

// WebhookPayload triggers outbound webhooks for a tenant.
type WebhookPayload struct {
	TenantID  string          `json:"tenantId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}
