// Package dto provides request and response bodies for the event API.
package dto

import (
	"encoding/json"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/event/domain"
	customValidation "github.com/allisson/propflow/internal/validation"
)

// PublishEventRequest publishes one domain event.
type PublishEventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Validate checks if the publish request is valid.
func (r *PublishEventRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Type, validation.Required, customValidation.EventName),
		validation.Field(&r.Data, validation.Required),
	)
}

// EventResponse acknowledges a published event.
type EventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// MapEventToResponse converts a domain event.
func MapEventToResponse(event *domain.Event) EventResponse {
	return EventResponse{
		ID:        event.ID.String(),
		Type:      event.Type.String(),
		CreatedAt: event.CreatedAt,
	}
}
