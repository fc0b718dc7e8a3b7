// Package repository provides PostgreSQL and MySQL persistence for published events.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/event/domain"
)

// PostgreSQLEventRepository stores events in PostgreSQL.
type PostgreSQLEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLEventRepository creates a new PostgreSQLEventRepository.
func NewPostgreSQLEventRepository(db *sql.DB) *PostgreSQLEventRepository {
	return &PostgreSQLEventRepository{db: db}
}

func (r *PostgreSQLEventRepository) Create(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO events (id, type, payload, processed, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(ctx, query, event.ID, string(event.Type),
		database.JSONArg(event.Payload), event.Processed, event.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create event")
	}
	return nil
}

func (r *PostgreSQLEventRepository) ListUnprocessed(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*domain.Event, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, type, payload, processed, created_at, processed_at
			  FROM events
			  WHERE processed = false AND created_at < $1
			  ORDER BY created_at ASC, id ASC
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unprocessed events")
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*domain.Event, 0)
	for rows.Next() {
		var event domain.Event
		var payload []byte
		if err := rows.Scan(&event.ID, &event.Type, &payload, &event.Processed,
			&event.CreatedAt, &event.ProcessedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan event")
		}
		event.Payload = payload
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate events")
	}
	return events, nil
}

func (r *PostgreSQLEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	_, err := querier.ExecContext(ctx,
		`UPDATE events SET processed = true, processed_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark event processed")
	}
	return nil
}

func (r *PostgreSQLEventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM events WHERE processed = true AND processed_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete processed events")
	}
	return result.RowsAffected()
}
