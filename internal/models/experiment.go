package models

import (
	"time"
)

// TestStatus is the experiment lifecycle. Only running tests take part in
// resolution.
type TestStatus string

const (
	TestDraft     TestStatus = "draft"
	TestRunning   TestStatus = "running"
	TestPaused    TestStatus = "paused"
	TestCompleted TestStatus = "completed"
)

// ExperimentTest is a split test attached to exactly one link. Its variants
// are immutable once the test starts so deterministic bucketing stays stable
// for already-assigned visitors.
type ExperimentTest struct {
	ID        int64      `json:"id"`
	LinkID    int64      `json:"link_id"`
	Name      string     `json:"name"`
	Status    TestStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`

	Variants []ExperimentVariant `json:"variants,omitempty"`
}

// ExperimentVariant weights are relative shares; they need not sum to 100.
// Position fixes the cumulative-range order.
type ExperimentVariant struct {
	ID             int64  `json:"id"`
	TestID         int64  `json:"test_id"`
	Name           string `json:"name"`
	DestinationURL string `json:"destination_url"`
	Weight         int    `json:"weight"`
	Position       int    `json:"position"`
}

// ExperimentAssignment pins a visitor fingerprint to a variant for the life
// of the test.
type ExperimentAssignment struct {
	TestID      int64     `json:"test_id"`
	Fingerprint string    `json:"fingerprint"`
	VariantID   int64     `json:"variant_id"`
	CreatedAt   time.Time `json:"created_at"`
}
