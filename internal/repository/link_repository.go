package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mkorolev/qrlink/internal/models"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	// IncrementScanCount bumps the cumulative counter and the monthly counter.
	// A stored reset stamp older than monthStart means the month rolled over:
	// the monthly counter restarts at 1 and the stamp moves to monthStart.
	IncrementScanCount(ctx context.Context, linkID int64, monthStart time.Time) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `
	id, short_code, name, content_type, destination_url, payload,
	expires_at, active_from, active_until, schedule, timezone,
	password_hash, landing_page_url,
	owner_id, tier, scan_count, monthly_scan_count, scan_count_reset_at,
	created_at`

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (
			short_code, name, content_type, destination_url, payload,
			expires_at, active_from, active_until, schedule, timezone,
			password_hash, landing_page_url,
			owner_id, tier, scan_count, monthly_scan_count, scan_count_reset_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ShortCode,
		link.Name,
		link.ContentType,
		link.DestinationURL,
		link.Payload,
		link.ExpiresAt,
		link.ActiveFrom,
		link.ActiveUntil,
		link.Schedule,
		link.Timezone,
		link.PasswordHash,
		link.LandingPageURL,
		link.OwnerID,
		link.Tier,
		link.ScanCount,
		link.MonthlyScanCount,
		link.ScanCountResetAt,
		link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT` + linkColumns + ` FROM links WHERE short_code = $1`

	link := &models.Link{}
	err := r.db.Pool.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.Name,
		&link.ContentType,
		&link.DestinationURL,
		&link.Payload,
		&link.ExpiresAt,
		&link.ActiveFrom,
		&link.ActiveUntil,
		&link.Schedule,
		&link.Timezone,
		&link.PasswordHash,
		&link.LandingPageURL,
		&link.OwnerID,
		&link.Tier,
		&link.ScanCount,
		&link.MonthlyScanCount,
		&link.ScanCountResetAt,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (r *linkRepository) IncrementScanCount(ctx context.Context, linkID int64, monthStart time.Time) error {
	query := `
		UPDATE links SET
			scan_count = scan_count + 1,
			monthly_scan_count = CASE
				WHEN scan_count_reset_at IS NULL OR scan_count_reset_at < $2 THEN 1
				ELSE monthly_scan_count + 1
			END,
			scan_count_reset_at = CASE
				WHEN scan_count_reset_at IS NULL OR scan_count_reset_at < $2 THEN $2
				ELSE scan_count_reset_at
			END
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, linkID, monthStart)
	if err != nil {
		return fmt.Errorf("failed to increment scan count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
