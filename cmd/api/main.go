package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkorolev/qrlink/internal/config"
	"github.com/mkorolev/qrlink/internal/handler"
	"github.com/mkorolev/qrlink/internal/middleware"
	"github.com/mkorolev/qrlink/internal/repository"
	"github.com/mkorolev/qrlink/internal/service"
	"github.com/mkorolev/qrlink/internal/webhook"
	"go.uber.org/zap"
)

func main() {
	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Postgres
	db, err := repository.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Redis
	redis, err := repository.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Repositories
	linkRepo := repository.NewLinkRepository(db)
	cacheRepo := repository.NewCacheRepository(redis)
	scanRepo := repository.NewScanRepository(db)
	experimentRepo := repository.NewExperimentRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)

	// Geo lookup is optional; the scan pipeline runs without it.
	var geoLookup service.GeoLookupFunc
	if cfg.Geo.Enabled {
		geoLookup = service.NewIPAPILookup(cfg.Geo.Timeout)
		logger.Info("Geo lookups enabled", zap.Duration("ttl", cfg.Geo.TTL))
	}
	geoCache := service.NewGeoCache(cfg.Geo, geoLookup, logger)

	// Webhook delivery engine
	dispatcher := webhook.NewDispatcher(webhookRepo, cfg.Webhook, logger)

	// Scan processor (worker pool)
	scanProcessor := service.NewScanProcessor(scanRepo, linkRepo, geoCache, dispatcher, service.ScanProcessorOptions{
		Workers:    cfg.Scan.Workers,
		BufferSize: cfg.Scan.BufferSize,
		IPSalt:     cfg.Scan.IPSalt,
	}, logger)
	scanProcessor.Start()
	defer scanProcessor.Stop()

	// Resolver
	selector := service.NewVariantSelector(experimentRepo, logger)
	resolver := service.NewResolver(linkRepo, cacheRepo, experimentRepo, selector, scanProcessor, cfg.Scan.IPSalt, logger)

	// Retry poller for failed deliveries
	poller := webhook.NewPoller(webhookRepo, dispatcher, cfg.Webhook.PollInterval, logger)
	if err := poller.Start(); err != nil {
		logger.Fatal("Failed to start webhook poller", zap.Error(err))
	}
	defer poller.Stop()

	// Middleware
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   time.Minute,
	})

	var apiKeyMiddleware gin.HandlerFunc
	if len(cfg.Auth.APIKeys) > 0 {
		apiKeyMiddleware = middleware.RequireAPIKey(cfg.Auth.APIKeys)
		logger.Info("API key authentication enabled", zap.Int("keys_count", len(cfg.Auth.APIKeys)))
	}

	// Router
	router := handler.NewRouter(resolver, scanProcessor, webhookRepo, rateLimiter, apiKeyMiddleware, logger)

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
