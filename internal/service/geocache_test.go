package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mkorolev/qrlink/internal/config"
	"github.com/mkorolev/qrlink/internal/service"
	"github.com/stretchr/testify/assert"
)

func geoTestConfig() config.GeoConfig {
	return config.GeoConfig{
		Enabled: true,
		TTL:     time.Hour,
		MaxSize: 100,
	}
}

func TestGeoCache_CachesLookups(t *testing.T) {
	var calls int64
	lookup := func(ctx context.Context, ip string) (*service.GeoResult, error) {
		atomic.AddInt64(&calls, 1)
		return &service.GeoResult{Country: "Germany", Region: "Berlin", City: "Berlin"}, nil
	}

	logger, _ := zap.NewDevelopment()
	cache := service.NewGeoCache(geoTestConfig(), lookup, logger)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := cache.Resolve(ctx, "203.0.113.7")
		assert.NotNil(t, result)
		assert.Equal(t, "Germany", result.Country)
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGeoCache_TTLExpiry(t *testing.T) {
	var calls int64
	lookup := func(ctx context.Context, ip string) (*service.GeoResult, error) {
		atomic.AddInt64(&calls, 1)
		return &service.GeoResult{Country: "Germany"}, nil
	}

	logger, _ := zap.NewDevelopment()
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	cache := service.NewGeoCache(geoTestConfig(), lookup, logger).WithClock(func() time.Time { return now })
	ctx := context.Background()

	cache.Resolve(ctx, "203.0.113.7")
	cache.Resolve(ctx, "203.0.113.7")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Within the TTL the entry is still fresh
	now = now.Add(59 * time.Minute)
	cache.Resolve(ctx, "203.0.113.7")
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Past the TTL the entry is re-fetched
	now = now.Add(2 * time.Minute)
	cache.Resolve(ctx, "203.0.113.7")
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestGeoCache_CachesFailures(t *testing.T) {
	var calls int64
	lookup := func(ctx context.Context, ip string) (*service.GeoResult, error) {
		atomic.AddInt64(&calls, 1)
		return nil, errors.New("upstream down")
	}

	logger, _ := zap.NewDevelopment()
	cache := service.NewGeoCache(geoTestConfig(), lookup, logger)
	ctx := context.Background()

	// A failed lookup degrades to nil and is cached so the upstream is not
	// hammered by repeats of the same address.
	for i := 0; i < 5; i++ {
		assert.Nil(t, cache.Resolve(ctx, "203.0.113.7"))
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGeoCache_SkipsUnroutableAddresses(t *testing.T) {
	var calls int64
	lookup := func(ctx context.Context, ip string) (*service.GeoResult, error) {
		atomic.AddInt64(&calls, 1)
		return &service.GeoResult{Country: "Nowhere"}, nil
	}

	logger, _ := zap.NewDevelopment()
	cache := service.NewGeoCache(geoTestConfig(), lookup, logger)
	ctx := context.Background()

	for _, ip := range []string{"127.0.0.1", "10.0.0.1", "192.168.1.1", "169.254.0.1", "0.0.0.0", "not-an-ip", ""} {
		assert.Nil(t, cache.Resolve(ctx, ip), "expected no lookup for %q", ip)
	}

	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
	assert.Equal(t, 0, cache.Len())
}

func TestGeoCache_NilLookupDisablesResolution(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	cache := service.NewGeoCache(geoTestConfig(), nil, logger)

	assert.Nil(t, cache.Resolve(context.Background(), "203.0.113.7"))
	assert.Equal(t, 0, cache.Len())
}

func TestGeoCache_SweepsExpiredWhenFull(t *testing.T) {
	lookup := func(ctx context.Context, ip string) (*service.GeoResult, error) {
		return &service.GeoResult{Country: "Germany"}, nil
	}

	cfg := geoTestConfig()
	cfg.MaxSize = 10

	logger, _ := zap.NewDevelopment()
	now := time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)
	cache := service.NewGeoCache(cfg, lookup, logger).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		cache.Resolve(ctx, fmt.Sprintf("203.0.113.%d", i+1))
	}
	assert.Equal(t, 10, cache.Len())

	// Once everything has expired, the next insert sweeps the old entries
	// instead of growing the map.
	now = now.Add(2 * time.Hour)
	cache.Resolve(ctx, "198.51.100.1")
	assert.Equal(t, 1, cache.Len())
}
