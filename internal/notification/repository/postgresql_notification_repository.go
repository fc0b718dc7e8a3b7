// Package repository provides PostgreSQL and MySQL persistence for notifications.
package repository

import (
	"context"
	"database/sql"

	"github.com/allisson/propflow/internal/database"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/notification/domain"
)

// PostgreSQLNotificationRepository stores notifications in PostgreSQL.
type PostgreSQLNotificationRepository struct {
	db *sql.DB
}

// NewPostgreSQLNotificationRepository creates a new PostgreSQLNotificationRepository.
func NewPostgreSQLNotificationRepository(db *sql.DB) *PostgreSQLNotificationRepository {
	return &PostgreSQLNotificationRepository{db: db}
}

func (r *PostgreSQLNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO notifications (id, user_id, type, title, message, action_url, metadata, landlord_id, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.ActionURL,
		database.JSONArg(n.Metadata), n.LandlordID, n.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create notification")
	}
	return nil
}

// MySQLNotificationRepository stores notifications in MySQL. UUIDs are BINARY(16).
type MySQLNotificationRepository struct {
	db *sql.DB
}

// NewMySQLNotificationRepository creates a new MySQLNotificationRepository.
func NewMySQLNotificationRepository(db *sql.DB) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

func (r *MySQLNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	querier := database.GetTx(ctx, r.db)

	id, err := n.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal notification id")
	}

	query := `INSERT INTO notifications (id, user_id, type, title, message, action_url, metadata, landlord_id, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, id, n.UserID, n.Type, n.Title, n.Message, n.ActionURL,
		database.JSONArg(n.Metadata), n.LandlordID, n.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create notification")
	}
	return nil
}
