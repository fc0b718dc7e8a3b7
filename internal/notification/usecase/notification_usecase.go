// Package usecase creates in-app notifications.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/clock"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/notification/domain"
	customValidation "github.com/allisson/propflow/internal/validation"
)

// NotificationRepository persists notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
}

// NotificationUseCase creates notifications.
type NotificationUseCase struct {
	repo   NotificationRepository
	clock  clock.Clock
	logger *slog.Logger
}

// NewNotificationUseCase creates a new NotificationUseCase.
func NewNotificationUseCase(
	repo NotificationRepository,
	clk clock.Clock,
	logger *slog.Logger,
) *NotificationUseCase {
	return &NotificationUseCase{repo: repo, clock: clk, logger: logger}
}

func validateCreateInput(input *domain.CreateInput) error {
	return validation.ValidateStruct(input,
		validation.Field(&input.UserID, validation.Required, customValidation.NotBlank),
		validation.Field(&input.Type, validation.Required, validation.Length(1, 64)),
		validation.Field(&input.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&input.ActionURL, validation.Length(0, 2048)),
	)
}

// CreateNotification stores a notification for input.UserID.
func (uc *NotificationUseCase) CreateNotification(
	ctx context.Context,
	input domain.CreateInput,
) (*domain.Notification, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, apperrors.Wrap(domain.ErrInvalidNotification, err.Error())
	}

	notification := &domain.Notification{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    input.UserID,
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		ActionURL: input.ActionURL,
		CreatedAt: uc.clock.Now(),
	}
	if input.LandlordID != "" {
		landlordID := input.LandlordID
		notification.LandlordID = &landlordID
	}
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, apperrors.Wrap(domain.ErrInvalidNotification, err.Error())
		}
		notification.Metadata = raw
	}

	if err := uc.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	if uc.logger != nil {
		uc.logger.Debug("notification created",
			slog.String("notification_id", notification.ID.String()),
			slog.String("user_id", notification.UserID),
			slog.String("type", notification.Type),
		)
	}
	return notification, nil
}
