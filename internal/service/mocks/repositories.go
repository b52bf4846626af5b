package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link
	nextID int64
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	m.links[link.ShortCode] = link
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (m *MockLinkRepository) IncrementScanCount(ctx context.Context, linkID int64, monthStart time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, link := range m.links {
		if link.ID != linkID {
			continue
		}
		link.ScanCount++
		if link.ScanCountResetAt == nil || link.ScanCountResetAt.Before(monthStart) {
			link.MonthlyScanCount = 1
			reset := monthStart
			link.ScanCountResetAt = &reset
		} else {
			link.MonthlyScanCount++
		}
		return nil
	}
	return repository.ErrLinkNotFound
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.nextID = 1
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.Link
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.Link),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[key]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = link
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*models.Link)
}

// MockScanRepository implements repository.ScanRepository for testing
type MockScanRepository struct {
	mu    sync.RWMutex
	scans map[int64][]*models.ScanEvent // link_id -> scans

	// InsertErr, when set, fails the next Insert calls.
	InsertErr error
}

func NewMockScanRepository() *MockScanRepository {
	return &MockScanRepository{
		scans: make(map[int64][]*models.ScanEvent),
	}
}

func (m *MockScanRepository) Insert(ctx context.Context, scan *models.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.scans[scan.LinkID] = append(m.scans[scan.LinkID], scan)
	return nil
}

func (m *MockScanRepository) GetStats(ctx context.Context, shortCode string) (*models.ScanStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.ScanStats{
		ShortCode:       shortCode,
		DeviceBreakdown: make(map[string]int64),
	}
	uniqueHashes := make(map[string]bool)

	for _, scans := range m.scans {
		for _, scan := range scans {
			if scan.ShortCode != shortCode {
				continue
			}
			stats.TotalScans++
			uniqueHashes[scan.IPHash] = true
			stats.DeviceBreakdown[scan.DeviceType]++
		}
	}

	stats.UniqueVisitors = int64(len(uniqueHashes))
	return stats, nil
}

// Scans returns the recorded events for a link.
func (m *MockScanRepository) Scans(linkID int64) []*models.ScanEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*models.ScanEvent(nil), m.scans[linkID]...)
}

func (m *MockScanRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = make(map[int64][]*models.ScanEvent)
}

// MockExperimentRepository implements repository.ExperimentRepository for testing
type MockExperimentRepository struct {
	mu          sync.RWMutex
	tests       map[int64]*models.ExperimentTest // link_id -> running test
	assignments map[string]*models.ExperimentAssignment
}

func NewMockExperimentRepository() *MockExperimentRepository {
	return &MockExperimentRepository{
		tests:       make(map[int64]*models.ExperimentTest),
		assignments: make(map[string]*models.ExperimentAssignment),
	}
}

// SetRunningTest registers test as the running test for its link.
func (m *MockExperimentRepository) SetRunningTest(test *models.ExperimentTest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[test.LinkID] = test
}

func (m *MockExperimentRepository) GetRunningByLink(ctx context.Context, linkID int64) (*models.ExperimentTest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	test, exists := m.tests[linkID]
	if !exists || test.Status != models.TestRunning {
		return nil, repository.ErrNoRunningTest
	}
	return test, nil
}

func (m *MockExperimentRepository) GetAssignment(ctx context.Context, testID int64, fingerprint string) (*models.ExperimentAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, exists := m.assignments[assignmentKey(testID, fingerprint)]
	if !exists {
		return nil, repository.ErrAssignmentNotFound
	}
	return a, nil
}

func (m *MockExperimentRepository) CreateAssignment(ctx context.Context, a *models.ExperimentAssignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := assignmentKey(a.TestID, a.Fingerprint)
	if _, exists := m.assignments[key]; exists {
		return false, nil
	}
	m.assignments[key] = a
	return true, nil
}

func (m *MockExperimentRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests = make(map[int64]*models.ExperimentTest)
	m.assignments = make(map[string]*models.ExperimentAssignment)
}

func assignmentKey(testID int64, fingerprint string) string {
	return fmt.Sprintf("%d/%s", testID, fingerprint)
}

// MockWebhookRepository implements repository.WebhookRepository for testing
type MockWebhookRepository struct {
	mu         sync.RWMutex
	configs    []models.WebhookConfig
	deliveries map[uuid.UUID]*models.WebhookDelivery
}

func NewMockWebhookRepository() *MockWebhookRepository {
	return &MockWebhookRepository{
		deliveries: make(map[uuid.UUID]*models.WebhookDelivery),
	}
}

func (m *MockWebhookRepository) GetActiveConfigs(ctx context.Context, linkID, ownerID int64, eventType string) ([]models.WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.WebhookConfig
	for _, cfg := range m.configs {
		if !cfg.Active || !contains(cfg.Events, eventType) {
			continue
		}
		if cfg.LinkID != nil && *cfg.LinkID != linkID {
			continue
		}
		if cfg.LinkID == nil && cfg.OwnerID != ownerID {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (m *MockWebhookRepository) CreateConfig(ctx context.Context, cfg *models.WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.ID = int64(len(m.configs) + 1)
	m.configs = append(m.configs, *cfg)
	return nil
}

func (m *MockWebhookRepository) InsertDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *MockWebhookRepository) UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.deliveries[d.ID]; !exists {
		return repository.ErrDeliveryNotFound
	}
	cp := *d
	m.deliveries[d.ID] = &cp
	return nil
}

func (m *MockWebhookRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*models.WebhookDelivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, exists := m.deliveries[id]
	if !exists {
		return nil, repository.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockWebhookRepository) GetDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.WebhookDelivery
	for _, d := range m.deliveries {
		if d.Status == models.DeliveryFailed && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockWebhookRepository) GetDeliveriesByLink(ctx context.Context, shortCode string, limit int) ([]models.WebhookDelivery, error) {
	return []models.WebhookDelivery{}, nil
}

func (m *MockWebhookRepository) GetConfigSecret(ctx context.Context, configID int64) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cfg := range m.configs {
		if cfg.ID == configID {
			return cfg.URL, cfg.Secret, nil
		}
	}
	return "", "", repository.ErrDeliveryNotFound
}

// Deliveries returns all stored deliveries.
func (m *MockWebhookRepository) Deliveries() []*models.WebhookDelivery {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.WebhookDelivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

func (m *MockWebhookRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs = nil
	m.deliveries = make(map[uuid.UUID]*models.WebhookDelivery)
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
