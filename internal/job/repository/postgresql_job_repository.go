// Package repository provides PostgreSQL and MySQL persistence for jobs.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/job/domain"
)

const jobColumns = `id, type, payload, scheduled_for, priority, attempts, max_retries, status,
	last_error, locked_by, locked_until, completed_at, created_at, updated_at`

// PostgreSQLJobRepository stores jobs in PostgreSQL.
type PostgreSQLJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLJobRepository creates a new PostgreSQLJobRepository.
func NewPostgreSQLJobRepository(db *sql.DB) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var payload []byte
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.ScheduledFor, &j.Priority, &j.Attempts, &j.MaxRetries,
		&j.Status, &j.LastError, &j.LockedBy, &j.LockedUntil, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

func (r *PostgreSQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO jobs (id, type, payload, scheduled_for, priority, attempts, max_retries, status,
			  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(ctx, query, job.ID, string(job.Type), database.JSONArg(job.Payload),
		job.ScheduledFor, job.Priority, job.Attempts, job.MaxRetries, string(job.Status),
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create job")
	}
	return nil
}

// ClaimDue leases runnable jobs in one statement. SKIP LOCKED keeps concurrent
// workers from claiming the same rows.
func (r *PostgreSQLJobRepository) ClaimDue(
	ctx context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `WITH candidates AS (
				SELECT id FROM jobs
				WHERE (status IN ('pending', 'retrying')
					   OR (status = 'processing' AND locked_until < $1))
				  AND scheduled_for <= $1
				  AND attempts < max_retries
				ORDER BY priority DESC, scheduled_for ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			  )
			  UPDATE jobs j
			  SET status = 'processing', locked_by = $3, locked_until = $4, updated_at = $1
			  FROM candidates
			  WHERE j.id = candidates.id
			  RETURNING j.id, j.type, j.payload, j.scheduled_for, j.priority, j.attempts, j.max_retries,
				j.status, j.last_error, j.locked_by, j.locked_until, j.completed_at, j.created_at, j.updated_at`

	rows, err := querier.QueryContext(ctx, query, now, limit, owner, leaseUntil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim due jobs")
	}
	defer rows.Close() //nolint:errcheck

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanPostgreSQLJob(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate jobs")
	}
	return jobs, nil
}

func (r *PostgreSQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE jobs
			  SET scheduled_for = $1, priority = $2, attempts = $3, max_retries = $4, status = $5,
				  last_error = $6, locked_by = $7, locked_until = $8, completed_at = $9, updated_at = $10
			  WHERE id = $11`

	result, err := querier.ExecContext(ctx, query, job.ScheduledFor, job.Priority, job.Attempts,
		job.MaxRetries, string(job.Status), job.LastError, job.LockedBy, job.LockedUntil,
		job.CompletedAt, job.UpdatedAt, job.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update job")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update job")
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *PostgreSQLJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanPostgreSQLJob(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job")
	}
	return job, nil
}

func (r *PostgreSQLJobRepository) HasPending(ctx context.Context, jobType domain.JobType, except uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT EXISTS (
				SELECT 1 FROM jobs WHERE type = $1 AND status IN ('pending', 'retrying', 'processing') AND id <> $2
			  )`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, string(jobType), except).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, "failed to check pending jobs")
	}
	return exists, nil
}

func (r *PostgreSQLJobRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'done' AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed jobs")
	}
	return result.RowsAffected()
}
