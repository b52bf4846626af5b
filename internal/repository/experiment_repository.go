package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mkorolev/qrlink/internal/models"
)

var ErrNoRunningTest = errors.New("no running test for link")

type ExperimentRepository interface {
	// GetRunningByLink returns the running test for a link with its variants
	// in stable position order, or ErrNoRunningTest.
	GetRunningByLink(ctx context.Context, linkID int64) (*models.ExperimentTest, error)
	GetAssignment(ctx context.Context, testID int64, fingerprint string) (*models.ExperimentAssignment, error)
	// CreateAssignment is insert-or-ignore: a concurrent first-writer winning
	// the race is reported as (false, nil), not an error.
	CreateAssignment(ctx context.Context, a *models.ExperimentAssignment) (bool, error)
}

var ErrAssignmentNotFound = errors.New("assignment not found")

type experimentRepository struct {
	db *PostgresDB
}

func NewExperimentRepository(db *PostgresDB) ExperimentRepository {
	return &experimentRepository{db: db}
}

func (r *experimentRepository) GetRunningByLink(ctx context.Context, linkID int64) (*models.ExperimentTest, error) {
	query := `
		SELECT id, link_id, name, status, created_at
		FROM experiment_tests
		WHERE link_id = $1 AND status = 'running'
		ORDER BY created_at
		LIMIT 1
	`

	test := &models.ExperimentTest{}
	err := r.db.Pool.QueryRow(ctx, query, linkID).Scan(
		&test.ID,
		&test.LinkID,
		&test.Name,
		&test.Status,
		&test.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoRunningTest
		}
		return nil, fmt.Errorf("failed to get running test: %w", err)
	}

	variantQuery := `
		SELECT id, test_id, name, destination_url, weight, position
		FROM experiment_variants
		WHERE test_id = $1
		ORDER BY position
	`

	rows, err := r.db.Pool.Query(ctx, variantQuery, test.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.ExperimentVariant
		if err := rows.Scan(&v.ID, &v.TestID, &v.Name, &v.DestinationURL, &v.Weight, &v.Position); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		test.Variants = append(test.Variants, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}

	return test, nil
}

func (r *experimentRepository) GetAssignment(ctx context.Context, testID int64, fingerprint string) (*models.ExperimentAssignment, error) {
	query := `
		SELECT test_id, fingerprint, variant_id, created_at
		FROM experiment_assignments
		WHERE test_id = $1 AND fingerprint = $2
	`

	a := &models.ExperimentAssignment{}
	err := r.db.Pool.QueryRow(ctx, query, testID, fingerprint).Scan(
		&a.TestID,
		&a.Fingerprint,
		&a.VariantID,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return a, nil
}

func (r *experimentRepository) CreateAssignment(ctx context.Context, a *models.ExperimentAssignment) (bool, error) {
	query := `
		INSERT INTO experiment_assignments (test_id, fingerprint, variant_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (test_id, fingerprint) DO NOTHING
	`

	result, err := r.db.Pool.Exec(ctx, query, a.TestID, a.Fingerprint, a.VariantID, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
