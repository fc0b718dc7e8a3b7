// Package domain defines the dead-letter record kept for work that failed permanently.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// Source identifies which pipeline gave up on a unit of work.
type Source string

const (
	SourceJob             Source = "job"
	SourceWebhookDelivery Source = "webhook_delivery"
	SourceEvent           Source = "event"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceJob, SourceWebhookDelivery, SourceEvent:
		return true
	}
	return false
}

// DeadLetter is a durable record of a job, delivery or event that will not be retried
// automatically. RequeuedAt is set once an operator sends it back to its source.
type DeadLetter struct {
	ID         uuid.UUID
	Source     Source
	SourceID   uuid.UUID
	Kind       string
	Payload    json.RawMessage
	LastError  string
	Attempts   int
	CreatedAt  time.Time
	RequeuedAt *time.Time
}

var (
	ErrDeadLetterNotFound = apperrors.Wrap(apperrors.ErrNotFound, "dead letter not found")
	ErrAlreadyRequeued    = apperrors.Wrap(apperrors.ErrConflict, "dead letter already requeued")
	ErrNotRequeueable     = apperrors.Wrap(apperrors.ErrInvalidInput, "dead letter source cannot be requeued")
	ErrInvalidSource      = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid dead letter source")
)
