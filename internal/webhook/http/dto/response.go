package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/propflow/internal/webhook/domain"
)

// EndpointResponse is the JSON view of an endpoint. Secret is only set on
// create, get and rotate.
type EndpointResponse struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	URL               string     `json:"url"`
	Secret            string     `json:"secret,omitempty"`
	Events            []string   `json:"events"`
	IsActive          bool       `json:"is_active"`
	FailureCount      int        `json:"failure_count"`
	LastSuccessAt     *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt     *time.Time `json:"last_failure_at,omitempty"`
	LastFailureReason *string    `json:"last_failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ListEndpointsResponse wraps a tenant's endpoints.
type ListEndpointsResponse struct {
	Data []EndpointResponse `json:"data"`
}

// DeliveryResponse is the JSON view of a delivery.
type DeliveryResponse struct {
	ID             string          `json:"id"`
	EndpointID     string          `json:"endpoint_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Status         string          `json:"status"`
	HTTPStatus     *int            `json:"http_status,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	ResponseTimeMs *int64          `json:"response_time_ms,omitempty"`
	Attempts       int             `json:"attempts"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ListDeliveriesResponse wraps a page of deliveries.
type ListDeliveriesResponse struct {
	Data []DeliveryResponse `json:"data"`
}

func MapEndpointToResponse(e *domain.Endpoint) EndpointResponse {
	events := e.Events
	if events == nil {
		events = []string{}
	}
	return EndpointResponse{
		ID:                e.ID.String(),
		TenantID:          e.TenantID,
		URL:               e.URL,
		Secret:            e.Secret,
		Events:            events,
		IsActive:          e.IsActive,
		FailureCount:      e.FailureCount,
		LastSuccessAt:     e.LastSuccessAt,
		LastFailureAt:     e.LastFailureAt,
		LastFailureReason: e.LastFailureReason,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func MapEndpointsToListResponse(endpoints []*domain.Endpoint) ListEndpointsResponse {
	data := make([]EndpointResponse, 0, len(endpoints))
	for _, e := range endpoints {
		data = append(data, MapEndpointToResponse(e))
	}
	return ListEndpointsResponse{Data: data}
}

func MapDeliveryToResponse(d *domain.Delivery) DeliveryResponse {
	resp := DeliveryResponse{
		ID:             d.ID.String(),
		EndpointID:     d.EndpointID.String(),
		EventType:      d.EventType,
		Status:         string(d.Status),
		HTTPStatus:     d.HTTPStatus,
		ResponseBody:   d.ResponseBody,
		ResponseTimeMs: d.ResponseTimeMs,
		Attempts:       d.Attempts,
		NextRetryAt:    d.NextRetryAt,
		DeliveredAt:    d.DeliveredAt,
		LastError:      d.LastError,
		CreatedAt:      d.CreatedAt,
	}
	if len(d.Payload) > 0 && json.Valid(d.Payload) {
		resp.Payload = d.Payload
	}
	return resp
}

func MapDeliveriesToListResponse(deliveries []*domain.Delivery) ListDeliveriesResponse {
	data := make([]DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		data = append(data, MapDeliveryToResponse(d))
	}
	return ListDeliveriesResponse{Data: data}
}
