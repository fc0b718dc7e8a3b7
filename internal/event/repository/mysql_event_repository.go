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

// MySQLEventRepository stores events in MySQL. UUIDs are BINARY(16).
type MySQLEventRepository struct {
	db *sql.DB
}

// NewMySQLEventRepository creates a new MySQLEventRepository.
func NewMySQLEventRepository(db *sql.DB) *MySQLEventRepository {
	return &MySQLEventRepository{db: db}
}

func (r *MySQLEventRepository) Create(ctx context.Context, event *domain.Event) error {
	querier := database.GetTx(ctx, r.db)

	id, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event id")
	}

	query := `INSERT INTO events (id, type, payload, processed, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, string(event.Type),
		database.JSONArg(event.Payload), event.Processed, event.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create event")
	}
	return nil
}

func (r *MySQLEventRepository) ListUnprocessed(
	ctx context.Context,
	before time.Time,
	limit int,
) ([]*domain.Event, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, type, payload, processed, created_at, processed_at
			  FROM events
			  WHERE processed = false AND created_at < ?
			  ORDER BY created_at ASC, id ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list unprocessed events")
	}
	defer rows.Close() //nolint:errcheck

	events := make([]*domain.Event, 0)
	for rows.Next() {
		var event domain.Event
		var id, payload []byte
		if err := rows.Scan(&id, &event.Type, &payload, &event.Processed,
			&event.CreatedAt, &event.ProcessedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan event")
		}
		if err := event.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal event id")
		}
		event.Payload = payload
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate events")
	}
	return events, nil
}

func (r *MySQLEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal event id")
	}

	_, err = querier.ExecContext(ctx,
		`UPDATE events SET processed = true, processed_at = ? WHERE id = ?`, at, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark event processed")
	}
	return nil
}

func (r *MySQLEventRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM events WHERE processed = true AND processed_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete processed events")
	}
	return result.RowsAffected()
}
