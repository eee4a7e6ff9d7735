// Package main provides the entry point for the ThreatLens server.
// ThreatLens parses security logs, scores per-source threat levels and
// enriches them with abuse-reputation data.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/api"
	"github.com/lvonguyen/threatlens/internal/api/gateway"
	"github.com/lvonguyen/threatlens/internal/config"
	"github.com/lvonguyen/threatlens/internal/detect"
	"github.com/lvonguyen/threatlens/internal/eventstore"
	"github.com/lvonguyen/threatlens/internal/logparse"
	"github.com/lvonguyen/threatlens/internal/observability"
	"github.com/lvonguyen/threatlens/internal/pipeline"
	"github.com/lvonguyen/threatlens/internal/publish"
	"github.com/lvonguyen/threatlens/internal/reputation"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ThreatLens %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A missing config file is not fatal; defaults cover local use.
		cfg = config.DefaultConfig()
	}

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceVersion = Version
	telemetryCfg.LogLevel = cfg.Logging.Level
	telemetryCfg.LogFormat = cfg.Logging.Format

	telemetry, err := observability.New(telemetryCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry init failed: %v\n", err)
		os.Exit(1)
	}
	logger := telemetry.Logger()
	defer logger.Sync()

	logger.Info("starting ThreatLens",
		zap.String("version", Version),
		zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	telemetry.StartSystemMetricsCollector(ctx)

	// Reputation client: Redis cache when configured, else in-process.
	var (
		repCache    reputation.Cache
		redisClient *redis.Client
	)
	if cfg.Reputation.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Reputation.Redis.Addr,
			Password: os.Getenv(cfg.Reputation.Redis.PasswordEnv),
			DB:       cfg.Reputation.Redis.DB,
			PoolSize: cfg.Reputation.Redis.PoolSize,
		})
		repCache = reputation.NewRedisCache(redisClient, cfg.Reputation.CacheTTL, "")
		logger.Info("reputation cache backed by redis", zap.String("addr", cfg.Reputation.Redis.Addr))
	} else {
		repCache = reputation.NewMemoryCache(cfg.Reputation.CacheTTL)
	}

	repOpts := []reputation.ClientOption{
		reputation.WithBatchDelay(cfg.Reputation.BatchDelay),
	}
	if cfg.Reputation.Enabled {
		provider, err := reputation.NewHTTPProvider(cfg.Reputation.Provider)
		if err != nil {
			logger.Warn("external reputation disabled", zap.Error(err))
		} else {
			repOpts = append(repOpts, reputation.WithProvider(provider))
		}
	}
	repClient := reputation.NewClient(repCache, logger, repOpts...)

	parser := logparse.New(logger)
	anomalyCfg := detect.AnomalyConfig{
		RequestsPerHour:    cfg.Detection.RequestsPerHour,
		AuthFailuresPerDay: cfg.Detection.AuthFailuresPerDay,
	}
	analysis := pipeline.New(parser, anomalyCfg, repClient, logger,
		pipeline.WithMetrics(telemetry.Metrics()))

	var publisher *publish.Publisher
	if cfg.Alerts.Enabled {
		publisher, err = publish.Connect(cfg.Alerts, logger)
		if err != nil {
			logger.Warn("alert publishing disabled", zap.Error(err))
		} else {
			defer publisher.Close()
			logger.Info("alert publishing enabled", zap.String("subject", cfg.Alerts.Subject))
		}
	}

	store := eventstore.NewStore()
	server := api.NewServer(store, analysis, repClient, logger, api.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Version:      Version,
		Publisher:    publisher,
		Telemetry:    telemetry,
	})

	var mw []func(http.Handler) http.Handler
	if redisClient != nil {
		limiter := gateway.NewRateLimiter(redisClient, gateway.RateLimitConfig{IncludeHeaders: true}, logger)
		mw = append(mw, limiter.Middleware(func(r *http.Request) string {
			return r.Header.Get("X-Owner-ID")
		}))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(mw...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting down", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
