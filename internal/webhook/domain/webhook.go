// Package domain defines webhook endpoints, deliveries and the delivery state machine.
package domain

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/backoff"
	apperrors "github.com/allisson/propflow/internal/errors"
)

const (
	// MaxDeliveryAttempts is the attempt count at which a delivery fails for good.
	MaxDeliveryAttempts = 5
	// ResponseBodyLimit caps the stored receiver response, in characters.
	ResponseBodyLimit = 1000
	// DeliveryTimeout bounds one HTTP attempt.
	DeliveryTimeout = 30 * time.Second
	// DefaultBatchSize is how many deliveries one processing run claims.
	DefaultBatchSize = 10
)

// Endpoint is a tenant-registered receiver subscribed to a set of event types.
// Secret holds the value as stored, sealed by the endpoint use case.
type Endpoint struct {
	ID                uuid.UUID
	TenantID          string
	URL               string
	Secret            string
	Events            []string
	IsActive          bool
	FailureCount      int
	LastSuccessAt     *time.Time
	LastFailureAt     *time.Time
	LastFailureReason *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Subscribes reports whether the endpoint wants eventType.
func (e *Endpoint) Subscribes(eventType string) bool {
	return slices.Contains(e.Events, eventType)
}

// ShouldAutoDisable reports whether an endpoint with failureCount consecutive
// failures must be deactivated. A threshold of zero or less never disables.
func ShouldAutoDisable(failureCount, threshold int) bool {
	return threshold > 0 && failureCount >= threshold
}

// DeliveryStatus is the state of one delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Delivery is one event payload bound for one endpoint.
type Delivery struct {
	ID             uuid.UUID
	EndpointID     uuid.UUID
	EventType      string
	Payload        json.RawMessage
	Status         DeliveryStatus
	HTTPStatus     *int
	ResponseBody   *string
	ResponseTimeMs *int64
	Attempts       int
	NextRetryAt    *time.Time
	DeliveredAt    *time.Time
	LastError      *string
	LockedBy       *string
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AttemptResult is the outcome of one HTTP attempt. StatusCode is zero when no
// response was received.
type AttemptResult struct {
	StatusCode int
	Body       string
	Latency    time.Duration
	Err        error
}

// Succeeded reports whether the receiver answered 2xx.
func (r AttemptResult) Succeeded() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Reason describes a failed attempt for storage.
func (r AttemptResult) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return "HTTP " + httpStatusText(r.StatusCode)
}

// Apply records an attempt on the delivery. A success marks it delivered. A
// failure increments Attempts and either schedules a retry 2^attempts minutes
// out or, at MaxDeliveryAttempts, fails it with no next retry.
func (d *Delivery) Apply(result AttemptResult, now time.Time) {
	d.UpdatedAt = now
	d.LockedBy = nil
	d.LockedUntil = nil

	latency := result.Latency.Milliseconds()
	d.ResponseTimeMs = &latency
	if result.StatusCode != 0 {
		code := result.StatusCode
		d.HTTPStatus = &code
		body := TruncateBody(result.Body)
		d.ResponseBody = &body
	}

	if result.Succeeded() {
		d.Status = DeliveryStatusDelivered
		d.DeliveredAt = &now
		d.NextRetryAt = nil
		d.LastError = nil
		return
	}

	d.Attempts++
	reason := result.Reason()
	d.LastError = &reason

	if d.Attempts >= MaxDeliveryAttempts {
		d.Status = DeliveryStatusFailed
		d.NextRetryAt = nil
		return
	}
	next := backoff.NextRetryAt(now, d.Attempts)
	d.Status = DeliveryStatusRetrying
	d.NextRetryAt = &next
}

// Abandon fails the delivery immediately without counting an attempt.
func (d *Delivery) Abandon(reason string, now time.Time) {
	d.Status = DeliveryStatusFailed
	d.NextRetryAt = nil
	d.LastError = &reason
	d.LockedBy = nil
	d.LockedUntil = nil
	d.UpdatedAt = now
}

// TruncateBody cuts body to ResponseBodyLimit characters.
func TruncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= ResponseBodyLimit {
		return body
	}
	return string(runes[:ResponseBodyLimit])
}

// CreateEndpointInput registers an endpoint. An empty Secret is generated.
type CreateEndpointInput struct {
	TenantID string
	URL      string
	Secret   string
	Events   []string
	IsActive *bool
}

// UpdateEndpointInput replaces the mutable fields of an endpoint.
type UpdateEndpointInput struct {
	URL      string
	Events   []string
	IsActive bool
}

var (
	ErrEndpointNotFound  = apperrors.Wrap(apperrors.ErrNotFound, "webhook endpoint not found")
	ErrDeliveryNotFound  = apperrors.Wrap(apperrors.ErrNotFound, "webhook delivery not found")
	ErrDeliveryNotFailed = apperrors.Wrap(apperrors.ErrConflict, "only failed deliveries can be retried")
	ErrEndpointInactive  = apperrors.New("webhook endpoint is inactive")
	ErrSecretUnavailable = apperrors.New("webhook secret could not be opened")
)
