// Package repository provides PostgreSQL and MySQL persistence for dead letters.
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

// PostgreSQLDeadLetterRepository stores dead letters in PostgreSQL.
type PostgreSQLDeadLetterRepository struct {
	db *sql.DB
}

// NewPostgreSQLDeadLetterRepository creates a new PostgreSQLDeadLetterRepository.
func NewPostgreSQLDeadLetterRepository(db *sql.DB) *PostgreSQLDeadLetterRepository {
	return &PostgreSQLDeadLetterRepository{db: db}
}

func (r *PostgreSQLDeadLetterRepository) Create(ctx context.Context, dl *domain.DeadLetter) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO dead_letters (id, source, source_id, kind, payload, last_error, attempts, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, dl.ID, dl.Source, dl.SourceID, dl.Kind,
		database.JSONArg(dl.Payload), dl.LastError, dl.Attempts, dl.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create dead letter")
	}
	return nil
}

func (r *PostgreSQLDeadLetterRepository) Get(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, source, source_id, kind, payload, last_error, attempts, created_at, requeued_at
			  FROM dead_letters WHERE id = $1`

	var dl domain.DeadLetter
	var payload []byte
	err := querier.QueryRowContext(ctx, query, id).Scan(&dl.ID, &dl.Source, &dl.SourceID, &dl.Kind,
		&payload, &dl.LastError, &dl.Attempts, &dl.CreatedAt, &dl.RequeuedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeadLetterNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get dead letter")
	}
	dl.Payload = payload
	return &dl, nil
}

func (r *PostgreSQLDeadLetterRepository) List(
	ctx context.Context,
	source domain.Source,
	offset, limit int,
) ([]*domain.DeadLetter, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, source, source_id, kind, payload, last_error, attempts, created_at, requeued_at
			  FROM dead_letters
			  WHERE ($1 = '' OR source = $1)
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, string(source), limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list dead letters")
	}
	defer rows.Close() //nolint:errcheck

	deadLetters := make([]*domain.DeadLetter, 0)
	for rows.Next() {
		var dl domain.DeadLetter
		var payload []byte
		if err := rows.Scan(&dl.ID, &dl.Source, &dl.SourceID, &dl.Kind, &payload,
			&dl.LastError, &dl.Attempts, &dl.CreatedAt, &dl.RequeuedAt); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan dead letter")
		}
		dl.Payload = payload
		deadLetters = append(deadLetters, &dl)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate dead letters")
	}
	return deadLetters, nil
}

func (r *PostgreSQLDeadLetterRepository) MarkRequeued(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`UPDATE dead_letters SET requeued_at = $1 WHERE id = $2 AND requeued_at IS NULL`, at, id)
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
