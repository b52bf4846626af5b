package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mkorolev/qrlink/internal/models"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

type WebhookRepository interface {
	// GetActiveConfigs returns active configs subscribed to eventType that are
	// bound to the link or owner-wide for the link's owner.
	GetActiveConfigs(ctx context.Context, linkID, ownerID int64, eventType string) ([]models.WebhookConfig, error)
	CreateConfig(ctx context.Context, cfg *models.WebhookConfig) error
	InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error)
	// GetDueDeliveries returns failed deliveries whose retry time has arrived.
	GetDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error)
	GetDeliveriesByLink(ctx context.Context, shortCode string, limit int) ([]models.WebhookDelivery, error)
	GetConfigSecret(ctx context.Context, configID int64) (string, string, error)
}

type webhookRepository struct {
	db *PostgresDB
}

func NewWebhookRepository(db *PostgresDB) WebhookRepository {
	return &webhookRepository{db: db}
}

func (r *webhookRepository) GetActiveConfigs(ctx context.Context, linkID, ownerID int64, eventType string) ([]models.WebhookConfig, error) {
	query := `
		SELECT id, link_id, owner_id, url, secret, active, events, created_at
		FROM webhook_configs
		WHERE active = TRUE
			AND $3 = ANY(events)
			AND (link_id = $1 OR (link_id IS NULL AND owner_id = $2))
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID, ownerID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook configs: %w", err)
	}
	defer rows.Close()

	var configs []models.WebhookConfig
	for rows.Next() {
		var cfg models.WebhookConfig
		if err := rows.Scan(&cfg.ID, &cfg.LinkID, &cfg.OwnerID, &cfg.URL, &cfg.Secret, &cfg.Active, &cfg.Events, &cfg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook config: %w", err)
		}
		configs = append(configs, cfg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook configs: %w", err)
	}

	return configs, nil
}

func (r *webhookRepository) CreateConfig(ctx context.Context, cfg *models.WebhookConfig) error {
	query := `
		INSERT INTO webhook_configs (link_id, owner_id, url, secret, active, events, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		cfg.LinkID, cfg.OwnerID, cfg.URL, cfg.Secret, cfg.Active, cfg.Events, cfg.CreatedAt,
	).Scan(&cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to create webhook config: %w", err)
	}

	return nil
}

func (r *webhookRepository) InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, config_id, event_type, payload, status, attempt_count,
			last_status, last_response, next_retry_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		d.ID, d.ConfigID, d.EventType, d.Payload, d.Status, d.AttemptCount,
		d.LastStatus, d.LastResponse, d.NextRetryAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}

	return nil
}

func (r *webhookRepository) UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries SET
			status = $2,
			attempt_count = $3,
			last_status = $4,
			last_response = $5,
			next_retry_at = $6,
			updated_at = $7
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query,
		d.ID, d.Status, d.AttemptCount, d.LastStatus, d.LastResponse, d.NextRetryAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}

	return nil
}

const deliveryColumns = `
	id, config_id, event_type, payload, status, attempt_count,
	last_status, last_response, next_retry_at, created_at, updated_at`

func (r *webhookRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	query := `SELECT` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	d := &models.WebhookDelivery{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.ConfigID, &d.EventType, &d.Payload, &d.Status, &d.AttemptCount,
		&d.LastStatus, &d.LastResponse, &d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	return d, nil
}

func (r *webhookRepository) GetDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	query := `SELECT` + deliveryColumns + `
		FROM webhook_deliveries
		WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY next_retry_at
		LIMIT $2
	`

	return r.queryDeliveries(ctx, query, now, limit)
}

func (r *webhookRepository) GetDeliveriesByLink(ctx context.Context, shortCode string, limit int) ([]models.WebhookDelivery, error) {
	query := `
		SELECT d.id, d.config_id, d.event_type, d.payload, d.status, d.attempt_count,
			d.last_status, d.last_response, d.next_retry_at, d.created_at, d.updated_at
		FROM webhook_deliveries d
		JOIN webhook_configs c ON d.config_id = c.id
		JOIN links l ON (c.link_id = l.id OR (c.link_id IS NULL AND c.owner_id = l.owner_id))
		WHERE l.short_code = $1
		ORDER BY d.created_at DESC
		LIMIT $2
	`

	return r.queryDeliveries(ctx, query, shortCode, limit)
}

func (r *webhookRepository) GetConfigSecret(ctx context.Context, configID int64) (string, string, error) {
	query := `SELECT url, secret FROM webhook_configs WHERE id = $1`

	var url, secret string
	err := r.db.Pool.QueryRow(ctx, query, configID).Scan(&url, &secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to get webhook config: %w", err)
	}

	return url, secret, nil
}

func (r *webhookRepository) queryDeliveries(ctx context.Context, query string, args ...any) ([]models.WebhookDelivery, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []models.WebhookDelivery
	for rows.Next() {
		var d models.WebhookDelivery
		if err := rows.Scan(
			&d.ID, &d.ConfigID, &d.EventType, &d.Payload, &d.Status, &d.AttemptCount,
			&d.LastStatus, &d.LastResponse, &d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliveries: %w", err)
	}

	return deliveries, nil
}
