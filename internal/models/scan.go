package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanEvent is an append-only record of one non-bot visit. The visitor IP is
// stored only as a truncated one-way hash.
type ScanEvent struct {
	ID         uuid.UUID `json:"id"`
	LinkID     int64     `json:"link_id"`
	ShortCode  string    `json:"short_code"`
	ScannedAt  time.Time `json:"scanned_at"`
	IPHash     string    `json:"ip_hash"`
	DeviceType string    `json:"device_type"`
	OS         string    `json:"os"`
	Browser    string    `json:"browser"`
	Referrer   string    `json:"referrer"`
	Country    *string   `json:"country,omitempty"`
	Region     *string   `json:"region,omitempty"`
	City       *string   `json:"city,omitempty"`
}

// ScanRequest carries the raw request metadata the recorder works from.
type ScanRequest struct {
	ShortCode string
	IPAddress string
	UserAgent string
	Referrer  string
}

type ScanStats struct {
	ShortCode       string           `json:"short_code"`
	TotalScans      int64            `json:"total_scans"`
	UniqueVisitors  int64            `json:"unique_visitors"`
	DeviceBreakdown map[string]int64 `json:"device_breakdown"`
}
