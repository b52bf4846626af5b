package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mkorolev/qrlink/internal/config"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"go.uber.org/zap"
)

const (
	headerSignature  = "X-Qrlink-Signature"
	headerDeliveryID = "X-Qrlink-Delivery-Id"
	headerEvent      = "X-Qrlink-Event"
	headerTimestamp  = "X-Qrlink-Timestamp"

	// Stored response snippets are capped so delivery history cannot grow
	// unboundedly from a chatty receiver.
	maxStoredResponse = 512
)

// NextRetryDelay is the backoff ladder by attempt number: 30s, 2m, 15m, 1h,
// then 4h for every further attempt.
func NextRetryDelay(attempt int) time.Duration {
	switch {
	case attempt <= 1:
		return 30 * time.Second
	case attempt == 2:
		return 2 * time.Minute
	case attempt == 3:
		return 15 * time.Minute
	case attempt == 4:
		return time.Hour
	default:
		return 4 * time.Hour
	}
}

// Dispatcher signs and sends event notifications and drives each delivery's
// state machine: pending -> success, or pending -> failed* -> exhausted.
// All failures stay inside the delivery row; nothing propagates to the scan
// path that triggered the event.
type Dispatcher struct {
	repo        repository.WebhookRepository
	client      *http.Client
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewDispatcher(repo repository.WebhookRepository, cfg config.WebhookConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock replaces the dispatcher's clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// DispatchScan creates one delivery per subscribed active config and makes
// the first attempt inline. Implements the recorder's EventDispatcher.
func (d *Dispatcher) DispatchScan(ctx context.Context, link *models.Link, scan *models.ScanEvent) {
	configs, err := d.repo.GetActiveConfigs(ctx, link.ID, link.OwnerID, models.EventScan)
	if err != nil {
		d.logger.Warn("failed to load webhook configs",
			zap.Int64("link_id", link.ID),
			zap.Error(err),
		)
		return
	}

	for _, cfg := range configs {
		delivery, err := d.createDelivery(ctx, &cfg, link, scan)
		if err != nil {
			d.logger.Warn("failed to create delivery",
				zap.Int64("config_id", cfg.ID),
				zap.Error(err),
			)
			continue
		}
		d.attempt(ctx, delivery, cfg.URL, cfg.Secret)
	}
}

// Retry re-drives one due delivery. Called by the poller after next_retry_at.
func (d *Dispatcher) Retry(ctx context.Context, id uuid.UUID) error {
	delivery, err := d.repo.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	if delivery.Status == models.DeliverySuccess || delivery.Status == models.DeliveryExhausted {
		return nil
	}

	url, secret, err := d.repo.GetConfigSecret(ctx, delivery.ConfigID)
	if err != nil {
		return fmt.Errorf("failed to load config for delivery %s: %w", delivery.ID, err)
	}

	d.attempt(ctx, delivery, url, secret)
	return nil
}

func (d *Dispatcher) createDelivery(ctx context.Context, cfg *models.WebhookConfig, link *models.Link, scan *models.ScanEvent) (*models.WebhookDelivery, error) {
	id := uuid.New()
	now := d.now()

	payload := models.EventPayload{
		Event:      models.EventScan,
		Timestamp:  now.Unix(),
		DeliveryID: id.String(),
		QRCode: models.PayloadQRCode{
			ID:          link.ID,
			Name:        link.Name,
			ShortCode:   link.ShortCode,
			ContentType: string(link.ContentType),
		},
		Scan: models.PayloadScan{
			ID:         scan.ID.String(),
			ScannedAt:  scan.ScannedAt,
			DeviceType: scan.DeviceType,
			OS:         scan.OS,
			Browser:    scan.Browser,
			Country:    scan.Country,
			City:       scan.City,
			Region:     scan.Region,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	delivery := &models.WebhookDelivery{
		ID:        id,
		ConfigID:  cfg.ID,
		EventType: models.EventScan,
		Payload:   body,
		Status:    models.DeliveryPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := d.repo.InsertDelivery(ctx, delivery); err != nil {
		return nil, err
	}

	return delivery, nil
}

// attempt makes one outbound call and applies the transition rules: 2xx is
// terminal success, a 4xx other than 429 is terminal exhaustion, anything
// else schedules a retry until attempts run out.
func (d *Dispatcher) attempt(ctx context.Context, delivery *models.WebhookDelivery, url, secret string) {
	delivery.AttemptCount++

	status, body, err := d.send(ctx, delivery, url, secret)
	now := d.now()
	delivery.UpdatedAt = now
	delivery.NextRetryAt = nil

	switch {
	case err == nil && status >= 200 && status < 300:
		delivery.Status = models.DeliverySuccess
		delivery.LastStatus = &status
		delivery.LastResponse = body

	case err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		// The receiver is permanently rejecting this URL; retrying is noise.
		delivery.Status = models.DeliveryExhausted
		delivery.LastStatus = &status
		delivery.LastResponse = body

	default:
		if err != nil {
			delivery.LastStatus = nil
			delivery.LastResponse = truncate(err.Error())
		} else {
			delivery.LastStatus = &status
			delivery.LastResponse = body
		}

		if delivery.AttemptCount >= d.maxAttempts {
			delivery.Status = models.DeliveryExhausted
		} else {
			delivery.Status = models.DeliveryFailed
			retryAt := now.Add(NextRetryDelay(delivery.AttemptCount))
			delivery.NextRetryAt = &retryAt
		}
	}

	if err := d.repo.UpdateDelivery(ctx, delivery); err != nil {
		d.logger.Error("failed to persist delivery state",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("webhook attempt",
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("status", string(delivery.Status)),
		zap.Int("attempt", delivery.AttemptCount),
	)
}

func (d *Dispatcher) send(ctx context.Context, delivery *models.WebhookDelivery, url, secret string) (int, string, error) {
	ts := d.now().Unix()
	signature := SignPayload(delivery.Payload, secret, ts)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, "sha256="+signature)
	req.Header.Set(headerDeliveryID, delivery.ID.String())
	req.Header.Set(headerEvent, delivery.EventType)
	req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxStoredResponse))
	return resp.StatusCode, string(snippet), nil
}

func truncate(s string) string {
	if len(s) > maxStoredResponse {
		return s[:maxStoredResponse]
	}
	return s
}
