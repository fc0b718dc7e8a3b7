package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/propflow/internal/clock"
	"github.com/allisson/propflow/internal/database"
	deadLetterDomain "github.com/allisson/propflow/internal/deadletter/domain"
	apperrors "github.com/allisson/propflow/internal/errors"
	"github.com/allisson/propflow/internal/metrics"
	customValidation "github.com/allisson/propflow/internal/validation"
	"github.com/allisson/propflow/internal/webhook/domain"
	"github.com/allisson/propflow/internal/webhook/service"
)

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	WorkerID      string
	BatchSize     int
	LeaseDuration time.Duration
	// AutoDisableThreshold deactivates an endpoint after this many consecutive
	// failed attempts. Zero keeps endpoints active regardless of failures.
	AutoDisableThreshold int
}

// WebhookDispatcher creates deliveries for matching endpoints and delivers them
// with signed POST requests.
type WebhookDispatcher struct {
	config      DispatcherConfig
	txManager   database.TxManager
	endpoints   EndpointRepository
	deliveries  DeliveryRepository
	cache       *EndpointCache
	sealer      service.SecretSealer
	sender      service.Sender
	deadLetters DeadLetterRecorder
	clock       clock.Clock
	metrics     metrics.BusinessMetrics
	logger      *slog.Logger

	wg sync.WaitGroup
}

// NewWebhookDispatcher creates a new WebhookDispatcher
func NewWebhookDispatcher(
	config DispatcherConfig,
	txManager database.TxManager,
	endpoints EndpointRepository,
	deliveries DeliveryRepository,
	cache *EndpointCache,
	sealer service.SecretSealer,
	sender service.Sender,
	deadLetters DeadLetterRecorder,
	clk clock.Clock,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *WebhookDispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = domain.DefaultBatchSize
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = 2 * time.Minute
	}
	if config.WorkerID == "" {
		config.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if cache == nil {
		cache = NewEndpointCache(0)
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}
	return &WebhookDispatcher{
		config:      config,
		txManager:   txManager,
		endpoints:   endpoints,
		deliveries:  deliveries,
		cache:       cache,
		sealer:      sealer,
		sender:      sender,
		deadLetters: deadLetters,
		clock:       clk,
		metrics:     businessMetrics,
		logger:      logger,
	}
}

// envelope is the JSON body receivers get. It is rebuilt identically on every
// attempt so the signature of a delivery never changes.
type envelope struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// Trigger inserts one pending delivery per active endpoint of tenantID subscribed
// to eventType, then starts delivering them in the background. Delivery outcomes
// never reach the caller.
func (d *WebhookDispatcher) Trigger(
	ctx context.Context,
	tenantID, eventType string,
	data any,
) ([]*domain.Delivery, error) {
	err := validation.Errors{
		"tenant_id":  validation.Validate(tenantID, validation.Required, customValidation.NotBlank),
		"event_type": validation.Validate(eventType, validation.Required, customValidation.EventName),
	}.Filter()
	if err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	endpoints, err := d.tenantEndpoints(ctx, tenantID)
	if err != nil {
		d.metrics.RecordOperation(ctx, "webhooks", "trigger", metrics.StatusError)
		return nil, err
	}

	now := d.clock.Now()
	deliveries := make([]*domain.Delivery, 0)
	for _, endpoint := range endpoints {
		if !endpoint.IsActive || !endpoint.Subscribes(eventType) {
			continue
		}
		deliveries = append(deliveries, &domain.Delivery{
			ID:         uuid.Must(uuid.NewV7()),
			EndpointID: endpoint.ID,
			EventType:  eventType,
			Payload:    payload,
			Status:     domain.DeliveryStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if len(deliveries) == 0 {
		d.metrics.RecordOperation(ctx, "webhooks", "trigger", metrics.StatusSuccess)
		return deliveries, nil
	}

	err = d.txManager.WithTx(ctx, func(ctx context.Context) error {
		for _, delivery := range deliveries {
			if err := d.deliveries.Create(ctx, delivery); err != nil {
				return err
			}
		}
		return nil
	})
	d.metrics.RecordOperation(ctx, "webhooks", "trigger", metrics.StatusOf(err))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create webhook deliveries")
	}

	if d.logger != nil {
		d.logger.Info("webhook triggered",
			slog.String("tenant_id", tenantID),
			slog.String("event_type", eventType),
			slog.Int("deliveries", len(deliveries)),
		)
	}

	d.processAsync(ctx)
	return deliveries, nil
}

func (d *WebhookDispatcher) processAsync(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.ProcessDeliveries(ctx); err != nil && d.logger != nil {
			d.logger.Error("failed to process webhook deliveries", slog.Any("error", err))
		}
	}()
}

// Wait blocks until background processing started by Trigger has finished or
// ctx is done.
func (d *WebhookDispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessDeliveries claims a batch of due deliveries and makes one attempt at each.
func (d *WebhookDispatcher) ProcessDeliveries(ctx context.Context) (ProcessResult, error) {
	start := time.Now()
	var result ProcessResult

	now := d.clock.Now()
	var claimed []*domain.Delivery
	err := d.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = d.deliveries.ClaimDue(ctx, now, d.config.BatchSize, d.config.WorkerID,
			now.Add(d.config.LeaseDuration))
		return err
	})
	if err != nil {
		d.metrics.RecordOperation(ctx, "webhooks", "process_deliveries", metrics.StatusError)
		return result, apperrors.Wrap(err, "failed to claim webhook deliveries")
	}

	result.Claimed = len(claimed)
	d.metrics.RecordBatch(ctx, "webhooks", len(claimed))

	var errs []error
	for _, delivery := range claimed {
		if err := d.deliver(ctx, delivery); err != nil {
			errs = append(errs, err)
		}
		switch delivery.Status {
		case domain.DeliveryStatusDelivered:
			result.Delivered++
		case domain.DeliveryStatusRetrying:
			result.Retrying++
		case domain.DeliveryStatusFailed:
			result.Failed++
		}
	}

	err = apperrors.Join(errs...)
	status := metrics.StatusOf(err)
	d.metrics.RecordOperation(ctx, "webhooks", "process_deliveries", status)
	d.metrics.RecordDuration(ctx, "webhooks", "process_deliveries", time.Since(start), status)
	return result, err
}

// deliver makes one attempt and persists the outcome. The returned error is only
// set when state could not be loaded or saved.
func (d *WebhookDispatcher) deliver(ctx context.Context, delivery *domain.Delivery) error {
	endpoint, err := d.endpoint(ctx, delivery.EndpointID)
	if err != nil && !apperrors.Is(err, domain.ErrEndpointNotFound) {
		return err
	}

	if endpoint == nil || !endpoint.IsActive {
		reason := "webhook endpoint not found"
		if endpoint != nil {
			reason = domain.ErrEndpointInactive.Error()
		}
		delivery.Abandon(reason, d.clock.Now())
		if err := d.deliveries.Update(ctx, delivery); err != nil {
			return apperrors.Wrapf(err, "failed to update delivery %s", delivery.ID)
		}
		d.deadLetter(ctx, delivery)
		return nil
	}

	result := d.attempt(ctx, endpoint, delivery)
	now := d.clock.Now()
	delivery.Apply(result, now)

	if err := d.deliveries.Update(ctx, delivery); err != nil {
		return apperrors.Wrapf(err, "failed to update delivery %s", delivery.ID)
	}

	if result.Succeeded() {
		if err := d.endpoints.RecordSuccess(ctx, endpoint.ID, now); err != nil {
			return apperrors.Wrapf(err, "failed to update endpoint %s", endpoint.ID)
		}
	} else {
		if err := d.recordEndpointFailure(ctx, endpoint, now, result.Reason()); err != nil {
			return err
		}
	}

	if d.logger != nil {
		d.logger.Info("webhook delivery attempted",
			slog.String("delivery_id", delivery.ID.String()),
			slog.String("endpoint_id", endpoint.ID.String()),
			slog.String("event_type", delivery.EventType),
			slog.String("status", string(delivery.Status)),
			slog.Int("attempts", delivery.Attempts),
			slog.Int("http_status", result.StatusCode),
		)
	}

	if delivery.Status == domain.DeliveryStatusFailed {
		d.deadLetter(ctx, delivery)
	}
	return nil
}

func (d *WebhookDispatcher) attempt(
	ctx context.Context,
	endpoint *domain.Endpoint,
	delivery *domain.Delivery,
) domain.AttemptResult {
	secret, err := d.sealer.Open(ctx, endpoint.Secret)
	if err != nil {
		return domain.AttemptResult{Err: apperrors.Wrap(domain.ErrSecretUnavailable, err.Error())}
	}

	body, err := json.Marshal(envelope{
		ID:        delivery.ID.String(),
		Event:     delivery.EventType,
		CreatedAt: delivery.CreatedAt,
		Data:      delivery.Payload,
	})
	if err != nil {
		return domain.AttemptResult{Err: err}
	}

	start := time.Now()
	result := d.sender.Send(ctx, service.Request{
		URL:        endpoint.URL,
		Secret:     secret,
		EventType:  delivery.EventType,
		DeliveryID: delivery.ID.String(),
		Body:       body,
	})
	d.metrics.RecordDuration(ctx, "webhooks", "send", time.Since(start), metrics.StatusOf(result.Err))
	return result
}

func (d *WebhookDispatcher) recordEndpointFailure(
	ctx context.Context,
	endpoint *domain.Endpoint,
	now time.Time,
	reason string,
) error {
	failures, err := d.endpoints.RecordFailure(ctx, endpoint.ID, now, reason)
	if err != nil {
		return apperrors.Wrapf(err, "failed to update endpoint %s", endpoint.ID)
	}
	if !domain.ShouldAutoDisable(failures, d.config.AutoDisableThreshold) {
		return nil
	}

	if err := d.endpoints.Deactivate(ctx, endpoint.ID, now); err != nil {
		return apperrors.Wrapf(err, "failed to deactivate endpoint %s", endpoint.ID)
	}
	d.cache.Invalidate(endpoint.TenantID, endpoint.ID)

	if d.logger != nil {
		d.logger.Warn("webhook endpoint auto-disabled",
			slog.String("endpoint_id", endpoint.ID.String()),
			slog.String("tenant_id", endpoint.TenantID),
			slog.Int("failure_count", failures),
		)
	}
	return nil
}

func (d *WebhookDispatcher) tenantEndpoints(ctx context.Context, tenantID string) ([]*domain.Endpoint, error) {
	if endpoints, ok := d.cache.Tenant(tenantID); ok {
		return endpoints, nil
	}
	endpoints, err := d.endpoints.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list webhook endpoints")
	}
	d.cache.SetTenant(tenantID, endpoints)
	return endpoints, nil
}

func (d *WebhookDispatcher) endpoint(ctx context.Context, id uuid.UUID) (*domain.Endpoint, error) {
	if endpoint, ok := d.cache.Endpoint(id); ok {
		return endpoint, nil
	}
	endpoint, err := d.endpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d.cache.SetEndpoint(endpoint)
	return endpoint, nil
}

func (d *WebhookDispatcher) deadLetter(ctx context.Context, delivery *domain.Delivery) {
	if d.deadLetters == nil {
		return
	}
	lastError := ""
	if delivery.LastError != nil {
		lastError = *delivery.LastError
	}
	err := d.deadLetters.Record(ctx, &deadLetterDomain.DeadLetter{
		Source:    deadLetterDomain.SourceWebhookDelivery,
		SourceID:  delivery.ID,
		Kind:      delivery.EventType,
		Payload:   delivery.Payload,
		LastError: lastError,
		Attempts:  delivery.Attempts,
	})
	if err != nil && d.logger != nil {
		d.logger.Error("failed to dead-letter webhook delivery",
			slog.String("delivery_id", delivery.ID.String()),
			slog.Any("error", err),
		)
	}
}

// RequeueDelivery returns a failed delivery to pending with a fresh attempt budget.
func (d *WebhookDispatcher) RequeueDelivery(ctx context.Context, id uuid.UUID) error {
	return d.txManager.WithTx(ctx, func(ctx context.Context) error {
		delivery, err := d.deliveries.Get(ctx, id)
		if err != nil {
			return err
		}
		if delivery.Status != domain.DeliveryStatusFailed {
			return domain.ErrDeliveryNotFailed
		}

		delivery.Status = domain.DeliveryStatusPending
		delivery.Attempts = 0
		delivery.NextRetryAt = nil
		delivery.LockedBy = nil
		delivery.LockedUntil = nil
		delivery.UpdatedAt = d.clock.Now()
		return d.deliveries.Update(ctx, delivery)
	})
}
