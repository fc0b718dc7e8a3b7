package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/webhook/domain"
)

const mysqlEndpointColumns = pgEndpointColumns

// MySQLEndpointRepository stores webhook endpoints in MySQL. UUIDs are
// BINARY(16) and events a JSON array.
type MySQLEndpointRepository struct {
	db *sql.DB
}

// NewMySQLEndpointRepository creates a new MySQLEndpointRepository.
func NewMySQLEndpointRepository(db *sql.DB) *MySQLEndpointRepository {
	return &MySQLEndpointRepository{db: db}
}

func scanMySQLEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var e domain.Endpoint
	var id, events []byte
	if err := row.Scan(&id, &e.TenantID, &e.URL, &e.Secret, &events, &e.IsActive, &e.FailureCount,
		&e.LastSuccessAt, &e.LastFailureAt, &e.LastFailureReason, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := e.ID.UnmarshalBinary(id); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(events, &e.Events); err != nil {
		return nil, err
	}
	return &e, nil
}

func marshalEvents(events []string) (string, error) {
	if events == nil {
		events = []string{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to marshal webhook events")
	}
	return string(b), nil
}

func (r *MySQLEndpointRepository) Create(ctx context.Context, endpoint *domain.Endpoint) error {
	querier := database.GetTx(ctx, r.db)

	id, err := endpoint.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}
	events, err := marshalEvents(endpoint.Events)
	if err != nil {
		return err
	}

	query := `INSERT INTO webhook_endpoints (id, tenant_id, url, secret, events, is_active, failure_count,
			  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, endpoint.TenantID, endpoint.URL, endpoint.Secret, events,
		endpoint.IsActive, endpoint.FailureCount, endpoint.CreatedAt, endpoint.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create webhook endpoint")
	}
	return nil
}

func (r *MySQLEndpointRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `SELECT ` + mysqlEndpointColumns + ` FROM webhook_endpoints WHERE id = ?`

	endpoint, err := scanMySQLEndpoint(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEndpointNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook endpoint")
	}
	return endpoint, nil
}

func (r *MySQLEndpointRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Endpoint, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + mysqlEndpointColumns + ` FROM webhook_endpoints
			  WHERE tenant_id = ? ORDER BY created_at ASC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook endpoints")
	}
	defer rows.Close() //nolint:errcheck

	endpoints := make([]*domain.Endpoint, 0)
	for rows.Next() {
		endpoint, err := scanMySQLEndpoint(rows)
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

func (r *MySQLEndpointRepository) Update(ctx context.Context, endpoint *domain.Endpoint) error {
	querier := database.GetTx(ctx, r.db)

	id, err := endpoint.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}
	events, err := marshalEvents(endpoint.Events)
	if err != nil {
		return err
	}

	query := `UPDATE webhook_endpoints
			  SET url = ?, secret = ?, events = ?, is_active = ?, failure_count = ?, updated_at = ?
			  WHERE id = ?`

	_, err = querier.ExecContext(ctx, query, endpoint.URL, endpoint.Secret, events,
		endpoint.IsActive, endpoint.FailureCount, endpoint.UpdatedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook endpoint")
	}
	// MySQL reports zero affected rows for an unchanged row, so existence is checked separately.
	return r.exists(ctx, id)
}

func (r *MySQLEndpointRepository) exists(ctx context.Context, id []byte) error {
	querier := database.GetTx(ctx, r.db)

	var one int
	err := querier.QueryRowContext(ctx, `SELECT 1 FROM webhook_endpoints WHERE id = ?`, id).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrEndpointNotFound
		}
		return apperrors.Wrap(err, "failed to check webhook endpoint")
	}
	return nil
}

func (r *MySQLEndpointRepository) Delete(ctx context.Context, id uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM webhook_endpoints WHERE id = ?`, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete webhook endpoint")
	}
	return requireAffected(result, domain.ErrEndpointNotFound)
}

func (r *MySQLEndpointRepository) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `UPDATE webhook_endpoints SET failure_count = 0, last_success_at = ? WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, at, idBytes); err != nil {
		return apperrors.Wrap(err, "failed to record webhook endpoint success")
	}
	return nil
}

func (r *MySQLEndpointRepository) RecordFailure(
	ctx context.Context,
	id uuid.UUID,
	at time.Time,
	reason string,
) (int, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `UPDATE webhook_endpoints
			  SET failure_count = failure_count + 1, last_failure_at = ?, last_failure_reason = ?
			  WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, at, reason, idBytes); err != nil {
		return 0, apperrors.Wrap(err, "failed to record webhook endpoint failure")
	}

	var failures int
	err = querier.QueryRowContext(ctx, `SELECT failure_count FROM webhook_endpoints WHERE id = ?`, idBytes).
		Scan(&failures)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrEndpointNotFound
		}
		return 0, apperrors.Wrap(err, "failed to read webhook endpoint failure count")
	}
	return failures, nil
}

func (r *MySQLEndpointRepository) Deactivate(ctx context.Context, id uuid.UUID, at time.Time) error {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `UPDATE webhook_endpoints SET is_active = false, updated_at = ? WHERE id = ?`

	if _, err := querier.ExecContext(ctx, query, at, idBytes); err != nil {
		return apperrors.Wrap(err, "failed to deactivate webhook endpoint")
	}
	return nil
}
