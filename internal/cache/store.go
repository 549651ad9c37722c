// Package cache stores canonical weather results behind a versioned key
// scheme. Backends are byte-oriented; Store adds keys, TTL policy and JSON
// encoding on top.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
)

// VersionTag is embedded in every key. Bump it whenever the canonical model
// or merge semantics change; the startup sweep then drops old entries.
const VersionTag = "v3"

const (
	DefaultCurrentTTL = 10 * time.Minute
	DefaultRecentTTL  = time.Hour
)

// StoreConfig configures a Store. Zero values use the defaults.
type StoreConfig struct {
	Version    string
	CurrentTTL time.Duration
	RecentTTL  time.Duration
}

// Store is the typed cache used by the engine. Backend errors are logged and
// counted but never returned: a failed Get is a miss, a failed Set is dropped.
type Store struct {
	backend    Cache
	version    string
	currentTTL time.Duration
	recentTTL  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewStore wraps backend.
func NewStore(backend Cache, cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.Version == "" {
		cfg.Version = VersionTag
	}
	if cfg.CurrentTTL <= 0 {
		cfg.CurrentTTL = DefaultCurrentTTL
	}
	if cfg.RecentTTL <= 0 {
		cfg.RecentTTL = DefaultRecentTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:    backend,
		version:    cfg.Version,
		currentTTL: cfg.CurrentTTL,
		recentTTL:  cfg.RecentTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Version returns the tag embedded in this store's keys.
func (s *Store) Version() string { return s.version }

// GenerateKey builds {version}:{kind}:{start}:{end}:{lat}:{lon} with
// coordinates at 4 decimals. Current requests pass empty start and end.
func GenerateKey(version string, kind models.Kind, start, end string, lat, lon float64) string {
	return fmt.Sprintf("%s:%s:%s:%s:%.4f:%.4f", version, kind, start, end, lat, lon)
}

// Key is GenerateKey with the store's version.
func (s *Store) Key(kind models.Kind, start, end string, lat, lon float64) string {
	return GenerateKey(s.version, kind, start, end, lat, lon)
}

// TTLFor returns the lifetime of a result. Current conditions use CurrentTTL.
// A range that ended before today (UTC) cannot change and gets no expiry;
// ranges touching today or later use RecentTTL.
func (s *Store) TTLFor(kind models.Kind, end string) time.Duration {
	if kind == models.KindCurrent {
		return s.currentTTL
	}
	endDate, err := time.Parse(time.DateOnly, end)
	if err != nil {
		return s.recentTTL
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if endDate.Before(today) {
		return 0
	}
	return s.recentTTL
}

func get[T any](ctx context.Context, s *Store, kind models.Kind, key string) (T, bool) {
	var zero T
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if !ok {
		observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
		s.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	observability.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Debug("cache hit", zap.String("key", key))
	return v, true
}

func set[T any](ctx context.Context, s *Store, kind models.Kind, key, end string, v T) {
	raw, err := json.Marshal(v)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		s.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.backend.Set(ctx, key, raw, s.TTLFor(kind, end)); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) GetCurrent(ctx context.Context, key string) (*models.CurrentConditions, bool) {
	v, ok := get[*models.CurrentConditions](ctx, s, models.KindCurrent, key)
	if v == nil {
		return nil, false
	}
	return v, ok
}

func (s *Store) SetCurrent(ctx context.Context, key string, v *models.CurrentConditions) {
	set(ctx, s, models.KindCurrent, key, "", v)
}

func (s *Store) GetDaily(ctx context.Context, key string) ([]models.DailyRecord, bool) {
	return get[[]models.DailyRecord](ctx, s, models.KindDaily, key)
}

// SetDaily stores records for a range ending at end (YYYY-MM-DD).
func (s *Store) SetDaily(ctx context.Context, key, end string, v []models.DailyRecord) {
	set(ctx, s, models.KindDaily, key, end, v)
}

func (s *Store) GetHourly(ctx context.Context, key string) ([]models.HourlyRecord, bool) {
	return get[[]models.HourlyRecord](ctx, s, models.KindHourly, key)
}

// SetHourly stores records for a range ending at end (YYYY-MM-DD).
func (s *Store) SetHourly(ctx context.Context, key, end string, v []models.HourlyRecord) {
	set(ctx, s, models.KindHourly, key, end, v)
}

// Sweep removes entries written under any other version tag.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	n, err := s.backend.Sweep(ctx, s.version)
	if n > 0 {
		observability.CacheSweptEntriesTotal.Add(float64(n))
	}
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("sweep").Inc()
		return n, fmt.Errorf("cache sweep: %w", err)
	}
	s.logger.Info("cache version sweep complete", zap.String("version", s.version), zap.Int("removed", n))
	return n, nil
}
