package repository

import (
	"context"
	"fmt"

	"github.com/mkorolev/qrlink/internal/models"
)

type ScanRepository interface {
	Insert(ctx context.Context, scan *models.ScanEvent) error
	GetStats(ctx context.Context, shortCode string) (*models.ScanStats, error)
}

type scanRepository struct {
	db *PostgresDB
}

func NewScanRepository(db *PostgresDB) ScanRepository {
	return &scanRepository{db: db}
}

func (r *scanRepository) Insert(ctx context.Context, scan *models.ScanEvent) error {
	query := `
		INSERT INTO scans (
			id, link_id, scanned_at, ip_hash, device_type, os, browser,
			referrer, country, region, city
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		scan.ID,
		scan.LinkID,
		scan.ScannedAt,
		scan.IPHash,
		scan.DeviceType,
		scan.OS,
		scan.Browser,
		scan.Referrer,
		scan.Country,
		scan.Region,
		scan.City,
	)

	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	return nil
}

func (r *scanRepository) GetStats(ctx context.Context, shortCode string) (*models.ScanStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_scans,
			COUNT(DISTINCT s.ip_hash) AS unique_visitors
		FROM scans s
		JOIN links l ON s.link_id = l.id
		WHERE l.short_code = $1
	`

	stats := &models.ScanStats{
		ShortCode:       shortCode,
		DeviceBreakdown: make(map[string]int64),
	}

	err := r.db.Pool.QueryRow(ctx, query, shortCode).Scan(
		&stats.TotalScans,
		&stats.UniqueVisitors,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan stats: %w", err)
	}

	deviceQuery := `
		SELECT s.device_type, COUNT(*)
		FROM scans s
		JOIN links l ON s.link_id = l.id
		WHERE l.short_code = $1
		GROUP BY s.device_type
	`

	rows, err := r.db.Pool.Query(ctx, deviceQuery, shortCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get device breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var device string
		var count int64
		if err := rows.Scan(&device, &count); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		stats.DeviceBreakdown[device] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device breakdown: %w", err)
	}

	return stats, nil
}
