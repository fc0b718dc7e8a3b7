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
	"github.com/allisson/propflow/internal/webhook/domain"
)

// MySQLDeliveryRepository stores webhook deliveries in MySQL. UUIDs are BINARY(16).
type MySQLDeliveryRepository struct {
	db *sql.DB
}

// NewMySQLDeliveryRepository creates a new MySQLDeliveryRepository.
func NewMySQLDeliveryRepository(db *sql.DB) *MySQLDeliveryRepository {
	return &MySQLDeliveryRepository{db: db}
}

func scanMySQLDelivery(row rowScanner) (*domain.Delivery, error) {
	var d domain.Delivery
	var id, endpointID, payload []byte
	if err := row.Scan(&id, &endpointID, &d.EventType, &payload, &d.Status, &d.HTTPStatus,
		&d.ResponseBody, &d.ResponseTimeMs, &d.Attempts, &d.NextRetryAt, &d.DeliveredAt, &d.LastError,
		&d.LockedBy, &d.LockedUntil, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := d.ID.UnmarshalBinary(id); err != nil {
		return nil, err
	}
	if err := d.EndpointID.UnmarshalBinary(endpointID); err != nil {
		return nil, err
	}
	d.Payload = payload
	return &d, nil
}

func collectMySQLDeliveries(rows *sql.Rows) ([]*domain.Delivery, error) {
	defer rows.Close() //nolint:errcheck

	deliveries := make([]*domain.Delivery, 0)
	for rows.Next() {
		d, err := scanMySQLDelivery(rows)
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

func (r *MySQLDeliveryRepository) Create(ctx context.Context, delivery *domain.Delivery) error {
	querier := database.GetTx(ctx, r.db)

	id, err := delivery.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook delivery id")
	}
	endpointID, err := delivery.EndpointID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `INSERT INTO webhook_deliveries (id, endpoint_id, event_type, payload, status, attempts,
			  created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, endpointID, delivery.EventType,
		database.JSONArg(delivery.Payload), string(delivery.Status), delivery.Attempts,
		delivery.CreatedAt, delivery.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create webhook delivery")
	}
	return nil
}

// ClaimDue selects due rows with FOR UPDATE SKIP LOCKED, then leases them by id.
// It must run inside a transaction for the row locks to hold until the update.
func (r *MySQLDeliveryRepository) ClaimDue(
	ctx context.Context,
	now time.Time,
	limit int,
	owner string,
	leaseUntil time.Time,
) ([]*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
			  WHERE status IN ('pending', 'retrying')
				AND attempts < ?
				AND (next_retry_at IS NULL OR next_retry_at <= ?)
				AND (locked_until IS NULL OR locked_until < ?)
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.MaxDeliveryAttempts, now, now, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to claim webhook deliveries")
	}
	deliveries, err := collectMySQLDeliveries(rows)
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return deliveries, nil
	}

	placeholders := make([]string, len(deliveries))
	args := []any{owner, leaseUntil, now}
	for i, d := range deliveries {
		id, err := d.ID.MarshalBinary()
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to marshal webhook delivery id")
		}
		placeholders[i] = "?"
		args = append(args, id)
		d.LockedBy = &owner
		d.LockedUntil = &leaseUntil
		d.UpdatedAt = now
	}

	update := `UPDATE webhook_deliveries SET locked_by = ?, locked_until = ?, updated_at = ?
			   WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	if _, err := querier.ExecContext(ctx, update, args...); err != nil {
		return nil, apperrors.Wrap(err, "failed to lease webhook deliveries")
	}
	return deliveries, nil
}

func (r *MySQLDeliveryRepository) Update(ctx context.Context, delivery *domain.Delivery) error {
	querier := database.GetTx(ctx, r.db)

	id, err := delivery.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal webhook delivery id")
	}

	query := `UPDATE webhook_deliveries
			  SET status = ?, http_status = ?, response_body = ?, response_time_ms = ?, attempts = ?,
				  next_retry_at = ?, delivered_at = ?, last_error = ?, locked_by = ?, locked_until = ?,
				  updated_at = ?
			  WHERE id = ?`

	_, err = querier.ExecContext(ctx, query, string(delivery.Status), delivery.HTTPStatus,
		delivery.ResponseBody, delivery.ResponseTimeMs, delivery.Attempts, delivery.NextRetryAt,
		delivery.DeliveredAt, delivery.LastError, delivery.LockedBy, delivery.LockedUntil,
		delivery.UpdatedAt, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update webhook delivery")
	}
	return nil
}

func (r *MySQLDeliveryRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal webhook delivery id")
	}

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = ?`

	delivery, err := scanMySQLDelivery(querier.QueryRowContext(ctx, query, idBytes))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeliveryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get webhook delivery")
	}
	return delivery, nil
}

func (r *MySQLDeliveryRepository) ListByEndpoint(
	ctx context.Context,
	endpointID uuid.UUID,
	offset, limit int,
) ([]*domain.Delivery, error) {
	querier := database.GetTx(ctx, r.db)

	idBytes, err := endpointID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal webhook endpoint id")
	}

	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
			  WHERE endpoint_id = ?
			  ORDER BY created_at DESC
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, idBytes, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook deliveries")
	}
	return collectMySQLDeliveries(rows)
}

func (r *MySQLDeliveryRepository) DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(ctx,
		`DELETE FROM webhook_deliveries WHERE status = 'delivered' AND delivered_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete delivered webhook deliveries")
	}
	return result.RowsAffected()
}
