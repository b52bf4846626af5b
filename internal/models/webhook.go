package models

import (
	"time"

	"github.com/google/uuid"
)

const EventScan = "scan"

// WebhookConfig is an owner-registered callback endpoint. The URL is
// SSRF-validated at registration time (webhook.URLValidator).
type WebhookConfig struct {
	ID        int64     `json:"id"`
	LinkID    *int64    `json:"link_id,omitempty"` // nil = owner-wide
	OwnerID   int64     `json:"owner_id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliveryStatus lifecycle: pending -> success | failed -> ... -> exhausted.
// success and exhausted are terminal.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySuccess   DeliveryStatus = "success"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

type WebhookDelivery struct {
	ID           uuid.UUID      `json:"id"`
	ConfigID     int64          `json:"config_id"`
	EventType    string         `json:"event_type"`
	Payload      []byte         `json:"payload"`
	Status       DeliveryStatus `json:"status"`
	AttemptCount int            `json:"attempt_count"`
	LastStatus   *int           `json:"last_status,omitempty"`
	LastResponse string         `json:"last_response,omitempty"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EventPayload is the JSON body posted to the callback URL.
type EventPayload struct {
	Event      string         `json:"event"`
	Timestamp  int64          `json:"timestamp"`
	DeliveryID string         `json:"delivery_id"`
	QRCode     PayloadQRCode  `json:"qr_code"`
	Scan       PayloadScan    `json:"scan"`
}

type PayloadQRCode struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ShortCode   string `json:"short_code"`
	ContentType string `json:"content_type"`
}

type PayloadScan struct {
	ID         string    `json:"id"`
	ScannedAt  time.Time `json:"scanned_at"`
	DeviceType string    `json:"device_type"`
	OS         string    `json:"os"`
	Browser    string    `json:"browser"`
	Country    *string   `json:"country"`
	City       *string   `json:"city"`
	Region     *string   `json:"region"`
}
