// Package http exposes the dead-letter sink over the admin API.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/deadletter/http/dto"
	deadLetterUseCase "github.com/allisson/propflow/internal/deadletter/usecase"
	"github.com/allisson/propflow/internal/httputil"
)

// DeadLetterHandler serves dead-letter listing and requeue.
type DeadLetterHandler struct {
	useCase deadLetterUseCase.UseCase
	logger  *slog.Logger
}

// NewDeadLetterHandler creates a DeadLetterHandler.
func NewDeadLetterHandler(useCase deadLetterUseCase.UseCase, logger *slog.Logger) *DeadLetterHandler {
	return &DeadLetterHandler{useCase: useCase, logger: logger}
}

// ListHandler lists dead letters.
// GET /v1/dead-letters?source=job&offset=0&limit=50
func (h *DeadLetterHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	deadLetters, err := h.useCase.List(c.Request.Context(), domain.Source(c.Query("source")), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapDeadLettersToListResponse(deadLetters))
}

// RequeueHandler sends a dead letter back to its source pipeline.
// POST /v1/dead-letters/:id/requeue
func (h *DeadLetterHandler) RequeueHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid dead letter id: %w", err), h.logger)
		return
	}

	deadLetter, err := h.useCase.Requeue(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapDeadLetterToResponse(deadLetter))
}
