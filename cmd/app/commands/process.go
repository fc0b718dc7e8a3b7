package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/propflow/internal/event/handler"
	jobUseCase "github.com/allisson/propflow/internal/job/usecase"
	webhookUseCase "github.com/allisson/propflow/internal/webhook/usecase"
)

// JobProcessor runs one batch of due jobs.
type JobProcessor interface {
	ProcessDue(ctx context.Context) (jobUseCase.ProcessResult, error)
}

// DeliveryProcessor runs one batch of due webhook deliveries.
type DeliveryProcessor interface {
	ProcessDeliveries(ctx context.Context) (webhookUseCase.ProcessResult, error)
	Wait(ctx context.Context) error
}

// BacklogReplayer replays unprocessed events once handlers are subscribed.
type BacklogReplayer interface {
	handler.Subscriber
	ProcessBacklog(ctx context.Context) (int, error)
}

// HandlerRegistrar subscribes the domain handlers on a bus.
type HandlerRegistrar interface {
	Register(s handler.Subscriber) error
}

// RunProcessJobs processes one batch of due jobs and waits for the webhook
// deliveries those jobs started.
func RunProcessJobs(
	ctx context.Context,
	queue JobProcessor,
	deliveries DeliveryProcessor,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	result, err := queue.ProcessDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to process jobs: %w", err)
	}
	if err := deliveries.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for webhook deliveries: %w", err)
	}

	logger.Info("jobs processed",
		slog.Int("claimed", result.Claimed),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("retried", result.Retried),
		slog.Int("failed", result.Failed),
	)

	if format == "json" {
		return writeJSON(w, map[string]int{
			"claimed":   result.Claimed,
			"succeeded": result.Succeeded,
			"retried":   result.Retried,
			"failed":    result.Failed,
		})
	}
	_, err = fmt.Fprintf(w, "Processed %d job(s): %d succeeded, %d retrying, %d failed\n",
		result.Claimed, result.Succeeded, result.Retried, result.Failed)
	return err
}

// RunProcessWebhooks delivers one batch of due webhook deliveries.
func RunProcessWebhooks(
	ctx context.Context,
	deliveries DeliveryProcessor,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	result, err := deliveries.ProcessDeliveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to process webhook deliveries: %w", err)
	}

	logger.Info("webhook deliveries processed",
		slog.Int("claimed", result.Claimed),
		slog.Int("delivered", result.Delivered),
		slog.Int("retrying", result.Retrying),
		slog.Int("failed", result.Failed),
	)

	if format == "json" {
		return writeJSON(w, map[string]int{
			"claimed":   result.Claimed,
			"delivered": result.Delivered,
			"retrying":  result.Retrying,
			"failed":    result.Failed,
		})
	}
	_, err = fmt.Fprintf(w, "Processed %d delivery(ies): %d delivered, %d retrying, %d failed\n",
		result.Claimed, result.Delivered, result.Retrying, result.Failed)
	return err
}

// RunReplayBacklog subscribes the handlers and dispatches every unprocessed event.
func RunReplayBacklog(
	ctx context.Context,
	bus BacklogReplayer,
	handlers HandlerRegistrar,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	if err := handlers.Register(bus); err != nil {
		return fmt.Errorf("failed to register event handlers: %w", err)
	}

	count, err := bus.ProcessBacklog(ctx)
	if err != nil {
		return fmt.Errorf("failed to replay event backlog: %w", err)
	}

	logger.Info("event backlog replayed", slog.Int("count", count))

	if format == "json" {
		return writeJSON(w, map[string]int{"replayed": count})
	}
	_, err = fmt.Fprintf(w, "Replayed %d event(s)\n", count)
	return err
}
