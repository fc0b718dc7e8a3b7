// Package repository provides PostgreSQL and MySQL persistence for webhook
// endpoints and deliveries.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/webhook/domain"
)

const pgEndpointColumns = `id, tenant_id, url, secret, events, is_active, failure_count,
	last_success_at, last_failure_at, last_failure_reason, created_at, updated_at`

// PostgreSQLEndpointRepository stores webhook endpoints in PostgreSQL. Events are a TEXT[] column.
type PostgreSQLEndpointRepository struct {
	db *sql.DB
}

// NewPostgreSQLEndpointRepository creates a new PostgreSQLEndpointRepository.
func NewPostgreSQLEndpointRepository(db *sql.DB) *PostgreSQLEndpointRepository {
	return &PostgreSQLEndpointRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var e domain.Endpoint
	var events pq.StringArray
	if err := row.Scan(&e.ID, &e.TenantID, &e.URL, &e.Secret, &events, &e.IsActive, &e.FailureCount,
		&e.LastSuccessAt, &e.LastFailureAt, &e.LastFailureReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Events = []string(events)
	return &e, nil
}

func (r *PostgreSQLEndpointRepository) Create(ctx context.Context, endpoint *domain.Endpoint) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO webhook_endpoints (id, tenant_id, url, secret, events, is_active, failure_count,
			  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, endpoint.ID, endpoint.TenantID, endpoint.URL, endpoint.Secret,
		pq.Array(endpoint.Events), endpoint.IsActive, endpoint.FailureCount, endpoint.CreatedAt, endpoint.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create webhook endpoint")
	}
	return nil
}

func (r *PostgreSQLEndpointRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + pgEndpointColumns + ` FROM webhook_endpoints WHERE id = $1`

	endpoint, err := scanPostgreSQLEndpoint(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook endpoint")
	}
	return endpoint, nil
}

func (r *PostgreSQLEndpointRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + pgEndpointColumns + ` FROM webhook_endpoints
			  WHERE tenant_id = $1 ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook endpoints")
	}
	defer rows.Close() //nolint:errcheck

	endpoints := make([]*domain.Endpoint, 0)
	for rows.Next() {
		endpoint, err := scanPostgreSQLEndpoint(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan webhook endpoint")
		}
		endpoints = append(endpoints, endpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate webhook endpoints")
	}
	return endpoints, nil
}

func (r *PostgreSQLEndpointRepository) Update(ctx context.Context, endpoint *domain.Endpoint) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_endpoints
			  SET url = $1, secret = $2, events = $3, is_active = $4, failure_count = $5, updated_at = $6
			  WHERE id = $7`

	result, err := querier.ExecContext(ctx, query, endpoint.URL, endpoint.Secret, pq.Array(endpoint.Events),
		endpoint.IsActive, endpoint.FailureCount, endpoint.UpdatedAt, endpoint.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook endpoint")
	}
	return requireAffected(result, domain.ErrEndpointNotFound)
}

func (r *PostgreSQLEndpointRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete webhook endpoint")
	}
	return requireAffected(result, domain.ErrEndpointNotFound)
}

func (r *PostgreSQLEndpointRepository) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_endpoints SET failure_count = 0, last_success_at = $1 WHERE id = $2`

	if _, err := querier.ExecContext(ctx, query, at, id); err != nil {
		return apperrors.Wrap(err, "failed to record webhook endpoint success")
	}
	return nil
}

func (r *PostgreSQLEndpointRepository) RecordFailure(
	ctx context.Context,
	id uuid.UUID,
	at time.Time,
	reason string,
) (int, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_endpoints
			  SET failure_count = failure_count + 1, last_failure_at = $1, last_failure_reason = $2
			  WHERE id = $3
			  RETURNING failure_count`

	var failures int
	if err := querier.QueryRowContext(ctx, query, at, reason, id).Scan(&failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrEndpointNotFound
		}
		return 0, apperrors.Wrap(err, "failed to record webhook endpoint failure")
	}
	return failures, nil
}

func (r *PostgreSQLEndpointRepository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_endpoints SET is_active = false, updated_at = $1 WHERE id = $2`

	if _, err := querier.ExecContext(ctx, query, at, id); err != nil {
		return apperrors.Wrap(err, "failed to deactivate webhook endpoint")
	}
	return nil
}

func requireAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
