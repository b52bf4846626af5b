package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"go.uber.org/zap"
)

var ErrNoVariants = errors.New("test has no variants")

// Fingerprint derives the stable visitor identity used for sticky bucketing.
// One-way and truncated: the raw IP is never stored or logged.
func Fingerprint(ip, salt string) string {
	sum := sha256.Sum256([]byte(salt + ip))
	return hex.EncodeToString(sum[:])[:16]
}

// HashIP is the scan-event form of the same privacy rule. Kept separate from
// Fingerprint so the two can diverge without breaking sticky assignments.
func HashIP(ip, salt string) string {
	sum := sha256.Sum256([]byte(salt + "|scan|" + ip))
	return hex.EncodeToString(sum[:])[:32]
}

// VariantSelector buckets visitors into experiment variants deterministically
// and keeps assignments sticky across visits.
type VariantSelector struct {
	experimentRepo repository.ExperimentRepository
	logger         *zap.Logger
}

func NewVariantSelector(experimentRepo repository.ExperimentRepository, logger *zap.Logger) *VariantSelector {
	return &VariantSelector{
		experimentRepo: experimentRepo,
		logger:         logger,
	}
}

// Select returns the variant for fingerprint in test. An existing assignment
// wins unconditionally; otherwise the visitor is hashed onto the variants'
// cumulative weight ranges and the new assignment persisted once. A
// concurrent duplicate insert is benign: logged, never fatal.
func (s *VariantSelector) Select(ctx context.Context, test *models.ExperimentTest, fingerprint string) (*models.ExperimentVariant, error) {
	if len(test.Variants) == 0 {
		return nil, ErrNoVariants
	}

	existing, err := s.experimentRepo.GetAssignment(ctx, test.ID, fingerprint)
	if err == nil {
		for i := range test.Variants {
			if test.Variants[i].ID == existing.VariantID {
				return &test.Variants[i], nil
			}
		}
		// Assignment points at a variant this test no longer carries; fall
		// through and rebucket.
		s.logger.Warn("assignment references unknown variant",
			zap.Int64("test_id", test.ID),
			zap.Int64("variant_id", existing.VariantID),
		)
	} else if !errors.Is(err, repository.ErrAssignmentNotFound) {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}

	chosen := pickVariant(test.ID, fingerprint, test.Variants)

	created, err := s.experimentRepo.CreateAssignment(ctx, &models.ExperimentAssignment{
		TestID:      test.ID,
		Fingerprint: fingerprint,
		VariantID:   chosen.ID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		s.logger.Warn("failed to persist assignment",
			zap.Int64("test_id", test.ID),
			zap.Error(err),
		)
	} else if !created {
		s.logger.Debug("assignment already written by concurrent request",
			zap.Int64("test_id", test.ID),
		)
	}

	return chosen, nil
}

// pickVariant maps a deterministic hash of (testID, fingerprint) onto the
// variants' cumulative weight ranges. Variant order is stable (position),
// so the same inputs always land in the same range.
func pickVariant(testID int64, fingerprint string, variants []models.ExperimentVariant) *models.ExperimentVariant {
	total := 0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total == 0 {
		return &variants[0]
	}

	value := bucketValue(testID, fingerprint)
	threshold := value * float64(total)

	cumulative := 0.0
	for i := range variants {
		if variants[i].Weight <= 0 {
			continue
		}
		cumulative += float64(variants[i].Weight)
		if threshold < cumulative {
			return &variants[i]
		}
	}

	return &variants[len(variants)-1]
}

// bucketValue hashes (testID, fingerprint) into [0, 1).
func bucketValue(testID int64, fingerprint string) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", testID, fingerprint)
	return float64(h.Sum64()) / (1 << 64)
}
