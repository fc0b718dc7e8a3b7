package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/deadletter/domain"
	"github.com/allisson/propflow/internal/deadletter/http/dto"
	deadLetterUseCase "github.com/allisson/propflow/internal/deadletter/usecase"
)

// RunListDeadLetters prints a page of dead letters, optionally filtered by source.
func RunListDeadLetters(
	ctx context.Context,
	useCase deadLetterUseCase.UseCase,
	logger *slog.Logger,
	w io.Writer,
	source string,
	offset, limit int,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	if offset < 0 || limit < 1 || limit > 1000 {
		return fmt.Errorf("invalid pagination: offset must be >= 0 and limit between 1 and 1000")
	}

	deadLetters, err := useCase.List(ctx, domain.Source(source), offset, limit)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	logger.Debug("dead letters listed", slog.Int("count", len(deadLetters)))

	if format == "json" {
		return writeJSON(w, dto.MapDeadLettersToListResponse(deadLetters))
	}

	if len(deadLetters) == 0 {
		_, err := fmt.Fprintln(w, "No dead letters found")
		return err
	}
	for _, dl := range deadLetters {
		requeued := "-"
		if dl.RequeuedAt != nil {
			requeued = dl.RequeuedAt.Format("2006-01-02 15:04:05")
		}
		if _, err := fmt.Fprintf(w, "%s  %-16s  %-20s  attempts=%d  requeued=%s  %s\n",
			dl.ID, dl.Source, dl.Kind, dl.Attempts, requeued, dl.LastError); err != nil {
			return err
		}
	}
	return nil
}

// RunRequeueDeadLetter hands a dead letter back to its source for another run.
func RunRequeueDeadLetter(
	ctx context.Context,
	useCase deadLetterUseCase.UseCase,
	logger *slog.Logger,
	w io.Writer,
	id string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	deadLetterID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid dead letter id: %w", err)
	}

	deadLetter, err := useCase.Requeue(ctx, deadLetterID)
	if err != nil {
		return fmt.Errorf("failed to requeue dead letter: %w", err)
	}

	logger.Info("dead letter requeued",
		slog.String("dead_letter_id", deadLetter.ID.String()),
		slog.String("source", string(deadLetter.Source)),
	)

	if format == "json" {
		return writeJSON(w, dto.MapDeadLetterToResponse(deadLetter))
	}
	_, err = fmt.Fprintf(w, "Requeued %s %s\n", deadLetter.Source, deadLetter.SourceID)
	return err
}
