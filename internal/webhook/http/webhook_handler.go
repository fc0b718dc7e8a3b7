// Package http exposes webhook endpoint management and delivery history over the admin API.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/httputil"
	customValidation "github.com/allisson/propflow/internal/validation"
	"github.com/allisson/propflow/internal/webhook/domain"
	"github.com/allisson/propflow/internal/webhook/http/dto"
	webhookUseCase "github.com/allisson/propflow/internal/webhook/usecase"
)

// WebhookHandler handles webhook endpoint and delivery requests.
type WebhookHandler struct {
	endpointUseCase webhookUseCase.EndpointUseCase
	dispatcher      webhookUseCase.Dispatcher
	logger          *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(
	endpointUseCase webhookUseCase.EndpointUseCase,
	dispatcher webhookUseCase.Dispatcher,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		endpointUseCase: endpointUseCase,
		dispatcher:      dispatcher,
		logger:          logger,
	}
}

func (h *WebhookHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid id: %w", err), h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// CreateHandler registers an endpoint for a tenant.
// POST /v1/tenants/:tenantId/webhooks
func (h *WebhookHandler) CreateHandler(c *gin.Context) {
	var req dto.CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	endpoint, err := h.endpointUseCase.Create(c.Request.Context(), &domain.CreateEndpointInput{
		TenantID: c.Param("tenantId"),
		URL:      req.URL,
		Secret:   req.Secret,
		Events:   req.Events,
		IsActive: req.IsActive,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapEndpointToResponse(endpoint))
}

// ListHandler lists a tenant's endpoints without secrets.
// GET /v1/tenants/:tenantId/webhooks
func (h *WebhookHandler) ListHandler(c *gin.Context) {
	endpoints, err := h.endpointUseCase.ListByTenant(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEndpointsToListResponse(endpoints))
}

// GetHandler returns one endpoint including its secret.
// GET /v1/webhooks/:id
func (h *WebhookHandler) GetHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	endpoint, err := h.endpointUseCase.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEndpointToResponse(endpoint))
}

// UpdateHandler replaces an endpoint's URL, events and active flag.
// PUT /v1/webhooks/:id
func (h *WebhookHandler) UpdateHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req dto.UpdateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	endpoint, err := h.endpointUseCase.Update(c.Request.Context(), id, &domain.UpdateEndpointInput{
		URL:      req.URL,
		Events:   req.Events,
		IsActive: req.IsActive,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEndpointToResponse(endpoint))
}

// DeleteHandler removes an endpoint and its deliveries.
// DELETE /v1/webhooks/:id
func (h *WebhookHandler) DeleteHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.endpointUseCase.Delete(c.Request.Context(), id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Status(http.StatusNoContent)
}

// RotateSecretHandler issues a new signing secret.
// POST /v1/webhooks/:id/rotate-secret
func (h *WebhookHandler) RotateSecretHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	endpoint, err := h.endpointUseCase.RotateSecret(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEndpointToResponse(endpoint))
}

// ListDeliveriesHandler lists an endpoint's deliveries, newest first.
// GET /v1/webhooks/:id/deliveries?offset=0&limit=50
func (h *WebhookHandler) ListDeliveriesHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	deliveries, err := h.endpointUseCase.ListDeliveries(c.Request.Context(), id, offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapDeliveriesToListResponse(deliveries))
}

// RetryDeliveryHandler returns a failed delivery to the queue.
// POST /v1/webhooks/deliveries/:id/retry
func (h *WebhookHandler) RetryDeliveryHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.dispatcher.RequeueDelivery(c.Request.Context(), id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id.String(), "status": string(domain.DeliveryStatusPending)})
}
