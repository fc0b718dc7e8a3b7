package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// Event is a published domain occurrence. Payload is the persisted JSON body and
// Data its decoded form; only Processed and ProcessedAt change after insert.
type Event struct {
	ID          uuid.UUID
	Type        Kind
	Payload     json.RawMessage
	Data        Payload
	CreatedAt   time.Time
	Processed   bool
	ProcessedAt *time.Time
}

var (
	ErrUnknownKind    = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown event kind")
	ErrInvalidPayload = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid event payload")
	ErrNilPayload     = apperrors.Wrap(apperrors.ErrInvalidInput, "event payload is required")
)
