// Package dto provides request and response bodies for the webhook API.
package dto

import (
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/propflow/internal/validation"
)

// CreateEndpointRequest registers a webhook endpoint for a tenant.
type CreateEndpointRequest struct {
	URL      string   `json:"url"`
	Secret   string   `json:"secret"`
	Events   []string `json:"events"`
	IsActive *bool    `json:"is_active"`
}

// Validate checks if the create endpoint request is valid.
func (r *CreateEndpointRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL, validation.Required, customValidation.HTTPURL, validation.Length(1, 2048)),
		validation.Field(&r.Secret, validation.Length(16, 256)),
		validation.Field(&r.Events,
			validation.Required,
			validation.Each(validation.Required, customValidation.EventName),
		),
	)
}

// UpdateEndpointRequest replaces the mutable fields of an endpoint.
type UpdateEndpointRequest struct {
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	IsActive bool     `json:"is_active"`
}

// Validate checks if the update endpoint request is valid.
func (r *UpdateEndpointRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.URL, validation.Required, customValidation.HTTPURL, validation.Length(1, 2048)),
		validation.Field(&r.Events,
			validation.Required,
			validation.Each(validation.Required, customValidation.EventName),
		),
	)
}
