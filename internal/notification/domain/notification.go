// Package domain defines in-app notifications.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/propflow/internal/errors"
)

// Notification is an in-app message shown to one user.
type Notification struct {
	ID         uuid.UUID
	UserID     string
	Type       string
	Title      string
	Message    string
	ActionURL  string
	Metadata   json.RawMessage
	LandlordID *string
	ReadAt     *time.Time
	CreatedAt  time.Time
}

// CreateInput contains the fields for a new notification.
type CreateInput struct {
	UserID     string
	Type       string
	Title      string
	Message    string
	ActionURL  string
	Metadata   map[string]any
	LandlordID string
}

var ErrInvalidNotification = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid notification")
