package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/webhook/domain"
)

const deliveryColumns = `id, endpoint_id, event_type, payload, status, http_status, response_body,
	response_time_ms, attempts, next_retry_at, delivered_at, last_error, locked_by, locked_until,
	created_at, updated_at`

// PostgreSQLDeliveryRepository stores webhook deliveries in PostgreSQL.
type PostgreSQLDeliveryRepository struct {
	db *sql.DB
}

// NewPostgreSQLDeliveryRepository creates a new PostgreSQLDeliveryRepository.
func NewPostgreSQLDeliveryRepository(db *sql.DB) *PostgreSQLDeliveryRepository {
	return &PostgreSQLDeliveryRepository{db: db}
}

func scanPostgreSQLDelivery(row rowScanner) (*domain.Delivery, error) {
	var d domain.Delivery
	var payload []byte
	if err := row.Scan(&d.ID, &d.EndpointID, &d.EventType, &payload, &d.Status, &d.HTTPStatus,
		&d.ResponseBody, &d.ResponseTimeMs, &d.Attempts, &d.NextRetryAt, &d.DeliveredAt, &d.LastError,
		&d.LockedBy, &d.LockedUntil, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Payload = payload
	return &d, nil
}

func collectPostgreSQLDeliveries(rows *sql.Rows) ([]*domain.Delivery, error) {
	defer rows.Close() //nolint:errcheck

	deliveries := make([]*domain.Delivery, 0)
	for rows.Next() {
		d, err := scanPostgreSQLDelivery(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan webhook delivery")
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate webhook deliveries")
	}
	return deliveries, nil
}

func (r *PostgreSQLDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO webhook_deliveries (id, endpoint_id, event_type, payload, status, attempts,
			  created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(ctx, query, delivery.ID, delivery.EndpointID, delivery.EventType,
		database.JSONArg(delivery.Payload), string(delivery.Status), delivery.Attempts,
		delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create webhook delivery")
	}
	return nil
}

// ClaimDue leases due deliveries with FOR UPDATE SKIP LOCKED so concurrent
// workers never claim the same row.
func (r *PostgreSQLDeliveryRepository) ClaimDue(
	ctx context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	query := `WITH candidates AS (
				SELECT id FROM webhook_deliveries
				WHERE status IN ('pending', 'retrying')
				  AND attempts < $1
				  AND (next_retry_at IS NULL OR next_retry_at <= $2)
				  AND (locked_until IS NULL OR locked_until < $2)
				ORDER BY created_at ASC
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			  )
			  UPDATE webhook_deliveries d
			  SET locked_by = $4, locked_until = $5, updated_at = $2
			  FROM candidates
			  WHERE d.id = candidates.id
			  RETURNING d.id, d.endpoint_id, d.event_type, d.payload, d.status, d.http_status,
				d.response_body, d.response_time_ms, d.attempts, d.next_retry_at, d.delivered_at,
				d.last_error, d.locked_by, d.locked_until, d.created_at, d.updated_at`

	rows, err := querier.QueryContext(ctx, query, domain.MaxDeliveryAttempts, now, limit, owner, leaseUntil)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim webhook deliveries")
	}
	return collectPostgreSQLDeliveries(rows)
}

func (r *PostgreSQLDeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE webhook_deliveries
			  SET status = $1, http_status = $2, response_body = $3, response_time_ms = $4, attempts = $5,
				  next_retry_at = $6, delivered_at = $7, last_error = $8, locked_by = $9, locked_until = $10,
				  updated_at = $11
			  WHERE id = $12`

	result, err := querier.ExecContext(ctx, query, string(delivery.Status), delivery.HTTPStatus,
		delivery.ResponseBody, delivery.ResponseTimeMs, delivery.Attempts, delivery.NextRetryAt,
		delivery.DeliveredAt, delivery.LastError, delivery.LockedBy, delivery.LockedUntil,
		delivery.UpdatedAt, delivery.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook delivery")
	}
	return requireAffected(result, domain.ErrDeliveryNotFound)
}

func (r *PostgreSQLDeliveryRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	delivery, err := scanPostgreSQLDelivery(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook delivery")
	}
	return delivery, nil
}

func (r *PostgreSQLDeliveryRepository) ListByEndpoint(
	ctx context.Context,
	endpointID uuid.UUID,
	offset, limit int,
) ([]*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
			  WHERE endpoint_id = $1
			  ORDER BY created_at DESC
			  LIMIT $2 OFFSET $3`

	rows, err := querier.QueryContext(ctx, query, endpointID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook deliveries")
	}
	return collectPostgreSQLDeliveries(rows)
}

func (r *PostgreSQLDeliveryRepository) DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM webhook_deliveries WHERE status = 'delivered' AND delivered_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete delivered webhook deliveries")
	}
	return result.RowsAffected()
}
