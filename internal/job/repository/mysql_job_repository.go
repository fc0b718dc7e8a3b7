package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/job/domain"
)

// MySQLJobRepository stores jobs in MySQL. UUIDs are BINARY(16).
type MySQLJobRepository struct {
	db *sql.DB
}

// NewMySQLJobRepository creates a new MySQLJobRepository.
func NewMySQLJobRepository(db *sql.DB) *MySQLJobRepository {
	return &MySQLJobRepository{db: db}
}

func scanMySQLJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var id, payload []byte
	if err := row.Scan(&id, &j.Type, &payload, &j.ScheduledFor, &j.Priority, &j.Attempts, &j.MaxRetries,
		&j.Status, &j.LastError, &j.LockedBy, &j.LockedUntil, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if err := j.ID.UnmarshalBinary(id); err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}

func (r *MySQLJobRepository) Create(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	id, err := job.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal job id")
	}

	query := `INSERT INTO jobs (id, type, payload, scheduled_for, priority, attempts, max_retries, status,
			  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, string(job.Type), database.JSONArg(job.Payload),
		job.ScheduledFor, job.Priority, job.Attempts, job.MaxRetries, string(job.Status),
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create job")
	}
	return nil
}

// ClaimDue locks runnable rows with SKIP LOCKED and leases them by id. The caller
// must hold a transaction so the row locks last until the update.
func (r *MySQLJobRepository) ClaimDue(
	ctx context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + jobColumns + ` FROM jobs
			  WHERE (status IN ('pending', 'retrying')
					 OR (status = 'processing' AND locked_until < ?))
				AND scheduled_for <= ?
				AND attempts < max_retries
			  ORDER BY priority DESC, scheduled_for ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, now, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim due jobs")
	}

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanMySQLJob(rows)
		if err != nil {
			_ = rows.Close()
			return nil, apperrors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, apperrors.Wrap(err, "failed to iterate jobs")
	}
	_ = rows.Close()

	if len(jobs) == 0 {
		return jobs, nil
	}

	placeholders := make([]string, len(jobs))
	args := []any{owner, leaseUntil, now}
	for i, job := range jobs {
		id, err := job.ID.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal job id")
		}
		placeholders[i] = "?"
		args = append(args, id)
		job.Status = domain.JobStatusProcessing
		job.LockedBy = &owner
		job.LockedUntil = &leaseUntil
		job.UpdatedAt = now
	}

	update := `UPDATE jobs SET status = 'processing', locked_by = ?, locked_until = ?, updated_at = ?
			   WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := querier.ExecContext(ctx, update, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to lease jobs")
	}
	return jobs, nil
}

func (r *MySQLJobRepository) Update(ctx context.Context, job *domain.Job) error {
	querier := database.GetTx(ctx, r.db)

	id, err := job.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal job id")
	}

	query := `UPDATE jobs
			  SET scheduled_for = ?, priority = ?, attempts = ?, max_retries = ?, status = ?,
				  last_error = ?, locked_by = ?, locked_until = ?, completed_at = ?, updated_at = ?
			  WHERE id = ?`

	_, err = querier.ExecContext(ctx, query, job.ScheduledFor, job.Priority, job.Attempts,
		job.MaxRetries, string(job.Status), job.LastError, job.LockedBy, job.LockedUntil,
		job.CompletedAt, job.UpdatedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update job")
	}
	return nil
}

func (r *MySQLJobRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal job id")
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanMySQLJob(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get job")
	}
	return job, nil
}

func (r *MySQLJobRepository) HasPending(ctx context.Context, jobType domain.JobType, except uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	exceptArg, err := except.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal job id")
	}

	query := `SELECT EXISTS (
				SELECT 1 FROM jobs WHERE type = ? AND status IN ('pending', 'retrying', 'processing') AND id <> ?
			  )`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, string(jobType), exceptArg).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, "failed to check pending jobs")
	}
	return exists, nil
}

func (r *MySQLJobRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM jobs WHERE status = 'done' AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed jobs")
	}
	return result.RowsAffected()
}
