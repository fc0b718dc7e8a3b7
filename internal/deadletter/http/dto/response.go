// Package dto provides response bodies for the dead-letter API.
package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/propflow/internal/deadletter/domain"
)

// DeadLetterResponse is the JSON view of a dead letter.
type DeadLetterResponse struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	SourceID   string          `json:"source_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	LastError  string          `json:"last_error"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	RequeuedAt *time.Time      `json:"requeued_at,omitempty"`
}

// ListDeadLettersResponse wraps a page of dead letters.
type ListDeadLettersResponse struct {
	Data []DeadLetterResponse `json:"data"`
}

// MapDeadLetterToResponse converts a domain dead letter.
func MapDeadLetterToResponse(dl *domain.DeadLetter) DeadLetterResponse {
	resp := DeadLetterResponse{
		ID:         dl.ID.String(),
		Source:     string(dl.Source),
		SourceID:   dl.SourceID.String(),
		Kind:       dl.Kind,
		LastError:  dl.LastError,
		Attempts:   dl.Attempts,
		CreatedAt:  dl.CreatedAt,
		RequeuedAt: dl.RequeuedAt,
	}
	if len(dl.Payload) > 0 && json.Valid(dl.Payload) {
		resp.Payload = dl.Payload
	}
	return resp
}

// MapDeadLettersToListResponse converts a page of dead letters.
func MapDeadLettersToListResponse(deadLetters []*domain.DeadLetter) ListDeadLettersResponse {
	data := make([]DeadLetterResponse, 0, len(deadLetters))
	for _, dl := range deadLetters {
		data = append(data, MapDeadLetterToResponse(dl))
	}
	return ListDeadLettersResponse{Data: data}
}
