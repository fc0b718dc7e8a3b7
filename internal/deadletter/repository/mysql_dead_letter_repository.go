package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	"github.com/allisson/propflow/internal/deadletter/domain"
	apperrors "github.com/allisson/propflow/internal/errors"
)

// MySQLDeadLetterRepository stores dead letters in MySQL. UUIDs are BINARY(16).
type MySQLDeadLetterRepository struct {
	db *sql.DB
}

// NewMySQLDeadLetterRepository creates a new MySQLDeadLetterRepository.
func NewMySQLDeadLetterRepository(db *sql.DB) *MySQLDeadLetterRepository {
	return &MySQLDeadLetterRepository{db: db}
}

func (r *MySQLDeadLetterRepository) Create(ctx context.Context, dl *domain.DeadLetter) error {
	querier := database.GetTx(ctx, r.db)

	id, err := dl.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dead letter id")
	}
	sourceID, err := dl.SourceID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dead letter source id")
	}

	query := `INSERT INTO dead_letters (id, source, source_id, kind, payload, last_error, attempts, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, dl.Source, sourceID, dl.Kind,
		database.JSONArg(dl.Payload), dl.LastError, dl.Attempts, dl.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dead letter")
	}
	return nil
}

type mysqlRowScanner interface {
	Scan(dest ...any) error
}

func scanMySQLDeadLetter(row mysqlRowScanner) (*domain.DeadLetter, error) {
	var dl domain.DeadLetter
	var id, sourceID, payload []byte
	if err := row.Scan(&id, &dl.Source, &sourceID, &dl.Kind, &payload,
		&dl.LastError, &dl.Attempts, &dl.CreatedAt, &dl.RequeuedAt); err != nil {
		return nil, err
	}
	if err := dl.ID.UnmarshalBinary(id); err != nil {
		return nil, err
	}
	if err := dl.SourceID.UnmarshalBinary(sourceID); err != nil {
		return nil, err
	}
	dl.Payload = payload
	return &dl, nil
}

func (r *MySQLDeadLetterRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal dead letter id")
	}

	query := `SELECT id, source, source_id, kind, payload, last_error, attempts, created_at, requeued_at
			  FROM dead_letters WHERE id = ?`

	dl, err := scanMySQLDeadLetter(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeadLetterNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get dead letter")
	}
	return dl, nil
}

func (r *MySQLDeadLetterRepository) List(
	ctx context.Context,
	source domain.Source,
	offset, limit int,
) ([]*domain.DeadLetter, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, source, source_id, kind, payload, last_error, attempts, created_at, requeued_at
			  FROM dead_letters
			  WHERE (? = '' OR source = ?)
			  ORDER BY created_at DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, string(source), string(source), limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dead letters")
	}
	defer rows.Close() //nolint:errcheck

	deadLetters := make([]*domain.DeadLetter, 0)
	for rows.Next() {
		dl, err := scanMySQLDeadLetter(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dead letter")
		}
		deadLetters = append(deadLetters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dead letters")
	}
	return deadLetters, nil
}

func (r *MySQLDeadLetterRepository) MarkRequeued(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal dead letter id")
	}

	result, err := querier.ExecContext(ctx,
		`UPDATE dead_letters SET requeued_at = ? WHERE id = ? AND requeued_at IS NULL`, at, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark dead letter requeued")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to mark dead letter requeued")
	}
	if affected == 0 {
		return domain.ErrAlreadyRequeued
	}
	return nil
}
