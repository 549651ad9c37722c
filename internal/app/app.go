// Package app assembles the engine, cache backend, background jobs and HTTP
// router from a loaded configuration. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-engine/internal/cache"
	"github.com/kjstillabower/weather-engine/internal/config"
	httphandler "github.com/kjstillabower/weather-engine/internal/http"
	"github.com/kjstillabower/weather-engine/internal/retry"
	"github.com/kjstillabower/weather-engine/internal/scheduler"
	"github.com/kjstillabower/weather-engine/internal/service"
	"github.com/kjstillabower/weather-engine/internal/sources"
	"github.com/kjstillabower/weather-engine/internal/traffic"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const overloadThresholdPct = 80

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     *cache.Store
	Engine    *service.Engine
	Scheduler *scheduler.Scheduler

	backend cache.Cache
	ping    func(ctx context.Context) error
	purger  scheduler.Purger
	closers []func() error
}

// New builds the cache backend, sweeps stale cache versions, and wires the
// sources into an Engine. Background jobs are registered but not started.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.openBackend(ctx); err != nil {
		return nil, err
	}
	a.Store = cache.NewStore(a.backend, cache.StoreConfig{
		Version:    cfg.CacheVersion,
		CurrentTTL: cfg.CacheCurrentTTL,
		RecentTTL:  cfg.CacheRecentTTL,
	}, logger)

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if _, err := a.Store.Sweep(sweepCtx); err != nil {
		logger.Warn("startup cache sweep failed", zap.Error(err))
	}
	cancel()

	retryOpts := retry.Options{
		MaxAttempts:       cfg.RetryAttempts,
		BaseDelay:         cfg.RetryBaseDelay,
		BackoffMultiplier: cfg.RetryBackoffMultiplier,
	}
	fetcher := sources.NewFetcher(cfg.SourceTimeout)

	var history service.HistoryProvider
	if key, ok := cfg.GetKey("meteostat"); ok {
		h, err := sources.NewMeteostatHistory(fetcher, cfg.Endpoints.Meteostat, key, retryOpts)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("meteostat: %w", err)
		}
		history = h
	}

	a.Engine = service.NewEngine(service.Config{
		Sources: sources.All(sources.Endpoints{
			OpenMeteo:        cfg.Endpoints.OpenMeteo,
			OpenMeteoArchive: cfg.Endpoints.OpenMeteoArchive,
			OpenWeatherMap:   cfg.Endpoints.OpenWeatherMap,
			OWMHistory:       cfg.Endpoints.OWMHistory,
			VisualCrossing:   cfg.Endpoints.VisualCrossing,
			WeatherAPI:       cfg.Endpoints.WeatherAPI,
			BrightSky:        cfg.Endpoints.BrightSky,
		}),
		Fetcher:       fetcher,
		Store:         a.Store,
		Credentials:   cfg,
		History:       history,
		Tracker:       traffic.Default(),
		Logger:        logger,
		SourceTimeout: cfg.SourceTimeout,
		Retry:         retryOpts,
		Breaker: service.BreakerSettings{
			FailureThreshold: uint32(cfg.BreakerFailureThreshold),
			MaxRequests:      uint32(cfg.BreakerMaxRequests),
			Interval:         cfg.BreakerInterval,
			Timeout:          cfg.BreakerTimeout,
		},
		Coalesce:     cfg.CoalesceEnabled,
		MaxRangeDays: cfg.MaxRangeDays,
	})

	a.Scheduler = scheduler.New(logger, 0)
	if cfg.WarmingEnabled {
		warmer := cache.NewCacheWarmer(a.Engine, logger)
		if err := a.Scheduler.AddWarmJob(warmer, cfg.TrackedCoordinates, cfg.WarmInterval); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if a.purger != nil && cfg.PurgeInterval > 0 {
		if err := a.Scheduler.AddPurgeJob(a.purger, cfg.PurgeInterval); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	logger.Info("engine ready",
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("cache_version", a.Store.Version()),
		zap.Int("sources", len(a.Engine.Sources())),
		zap.Bool("history_fallback", a.Engine.HasHistoryProvider()),
		zap.Bool("coalesce", cfg.CoalesceEnabled))
	return a, nil
}

func (a *App) openBackend(ctx context.Context) error {
	cfg := a.Config
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return fmt.Errorf("memcached cache: %w", err)
		}
		a.backend = mc
		a.ping = func(context.Context) error { return mc.Ping() }
		a.closers = append(a.closers, mc.Close)
		a.Logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		if err != nil {
			return fmt.Errorf("redis cache: %w", err)
		}
		a.backend = rc
		a.ping = rc.Ping
		a.closers = append(a.closers, rc.Close)
		a.Logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("sqlite dir: %w", err)
			}
		}
		sc, err := cache.NewSQLiteCache(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite cache: %w", err)
		}
		a.backend = sc
		a.purger = sc
		a.closers = append(a.closers, sc.Close)
		a.Logger.Info("cache backend: sqlite", zap.String("path", cfg.SQLitePath))
	default:
		a.backend = cache.NewInMemoryCache()
		a.Logger.Info("cache backend: in_memory")
	}
	return nil
}

// Router returns the HTTP router with health checks bound to the cache backend.
func (a *App) Router(startTime time.Time) *mux.Router {
	cfg := a.Config
	healthConfig := &httphandler.HealthConfig{
		Window:               cfg.HealthWindow,
		RateLimitRPS:         cfg.RateLimitRPS,
		OverloadThresholdPct: overloadThresholdPct,
		StartTime:            startTime,
		Version:              Version,
		CachePing:            a.ping,
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	h := httphandler.NewHandler(a.Engine, traffic.Default(), healthConfig, a.Logger)
	return httphandler.NewRouter(h, a.Logger, limiter, cfg.RequestTimeout)
}

// Purge removes expired rows when the backend supports it. It returns false
// when the backend expires entries on its own.
func (a *App) Purge(ctx context.Context) (int, bool, error) {
	if a.purger == nil {
		return 0, false, nil
	}
	n, err := a.purger.PurgeExpired(ctx)
	return n, true, err
}

// Close stops background jobs and releases the cache backend.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
