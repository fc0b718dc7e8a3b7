package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/allisson/propflow/internal/webhook/domain"
	"github.com/allisson/propflow/internal/webhook/http/dto"
	webhookUseCase "github.com/allisson/propflow/internal/webhook/usecase"
)

// RunCreateWebhookEndpoint registers an endpoint for a tenant and prints its signing
// secret. The secret is only shown here and on rotation.
func RunCreateWebhookEndpoint(
	ctx context.Context,
	useCase webhookUseCase.EndpointUseCase,
	logger *slog.Logger,
	w io.Writer,
	tenantID, url, events string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	endpoint, err := useCase.Create(ctx, &domain.CreateEndpointInput{
		TenantID: tenantID,
		URL:      url,
		Events:   splitEvents(events),
	})
	if err != nil {
		return fmt.Errorf("failed to create webhook endpoint: %w", err)
	}

	logger.Info("webhook endpoint created",
		slog.String("endpoint_id", endpoint.ID.String()),
		slog.String("tenant_id", endpoint.TenantID),
	)

	if format == "json" {
		return writeJSON(w, dto.MapEndpointToResponse(endpoint))
	}
	_, err = fmt.Fprintf(w,
		"Webhook endpoint created\n  id:     %s\n  url:    %s\n  events: %s\n  secret: %s\n\n"+
			"Store the secret now. It is used to verify the X-Webhook-Signature header.\n",
		endpoint.ID, endpoint.URL, strings.Join(endpoint.Events, ", "), endpoint.Secret)
	return err
}

func splitEvents(events string) []string {
	parts := strings.Split(events, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
