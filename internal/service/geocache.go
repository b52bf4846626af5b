package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mkorolev/qrlink/internal/config"
	"go.uber.org/zap"
)

// GeoResult is a resolved geography. A nil *GeoResult means "no geography",
// which is a valid, cacheable answer.
type GeoResult struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// GeoLookupFunc performs one outbound IP-geolocation call.
type GeoLookupFunc func(ctx context.Context, ip string) (*GeoResult, error)

type geoEntry struct {
	result     *GeoResult
	insertedAt time.Time
}

// GeoCache is a bounded, time-expiring cache in front of a geolocation
// lookup. It is shared by all recording workers; failed lookups are cached
// too so a flaky upstream is not hammered by bursts of the same address.
type GeoCache struct {
	mu      sync.RWMutex
	entries map[string]geoEntry

	ttl     time.Duration
	maxSize int
	now     func() time.Time
	lookup  GeoLookupFunc
	logger  *zap.Logger
}

// NewGeoCache builds a cache over lookup. A nil lookup disables resolution
// entirely (every address maps to no geography).
func NewGeoCache(cfg config.GeoConfig, lookup GeoLookupFunc, logger *zap.Logger) *GeoCache {
	return &GeoCache{
		entries: make(map[string]geoEntry),
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		now:     time.Now,
		lookup:  lookup,
		logger:  logger,
	}
}

// WithClock replaces the cache's clock. Test hook.
func (g *GeoCache) WithClock(now func() time.Time) *GeoCache {
	g.now = now
	return g
}

// Resolve returns the geography for ip, from cache when fresh. It never
// returns an error: lookup failures degrade to "no geography".
func (g *GeoCache) Resolve(ctx context.Context, ip string) *GeoResult {
	if g.lookup == nil || !isLookupable(ip) {
		return nil
	}

	now := g.now()

	g.mu.RLock()
	entry, ok := g.entries[ip]
	g.mu.RUnlock()
	if ok && now.Sub(entry.insertedAt) < g.ttl {
		return entry.result
	}

	result, err := g.lookup(ctx, ip)
	if err != nil {
		g.logger.Debug("geo lookup failed", zap.String("ip", ip), zap.Error(err))
		result = nil
	}

	g.mu.Lock()
	if len(g.entries) >= g.maxSize {
		g.sweepLocked(now)
	}
	g.entries[ip] = geoEntry{result: result, insertedAt: now}
	g.mu.Unlock()

	return result
}

// sweepLocked drops expired entries. Best-effort: if nothing expired the map
// may briefly exceed maxSize, which is fine.
func (g *GeoCache) sweepLocked(now time.Time) {
	for ip, entry := range g.entries {
		if now.Sub(entry.insertedAt) >= g.ttl {
			delete(g.entries, ip)
		}
	}
}

// Len reports the number of cached addresses.
func (g *GeoCache) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// isLookupable rejects addresses a public geolocation service can say
// nothing about.
func isLookupable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() {
		return false
	}
	return true
}

// NewIPAPILookup returns a GeoLookupFunc backed by ip-api.com with a fixed
// request timeout.
func NewIPAPILookup(timeout time.Duration) GeoLookupFunc {
	client := &http.Client{Timeout: timeout}

	return func(ctx context.Context, ip string) (*GeoResult, error) {
		url := fmt.Sprintf("http://ip-api.com/json/%s?fields=status,country,regionName,city", ip)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
		}

		var body struct {
			Status     string `json:"status"`
			Country    string `json:"country"`
			RegionName string `json:"regionName"`
			City       string `json:"city"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		if body.Status != "success" {
			return nil, fmt.Errorf("geo lookup failed for %s", ip)
		}

		return &GeoResult{Country: body.Country, Region: body.RegionName, City: body.City}, nil
	}
}
