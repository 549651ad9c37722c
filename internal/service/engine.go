// Package service holds the Engine: it validates a request, checks the cache,
// fans out to every eligible source, merges what comes back, falls back when
// nothing usable arrived, and writes the result to the cache.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/weather-engine/internal/cache"
	"github.com/kjstillabower/weather-engine/internal/merge"
	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
	"github.com/kjstillabower/weather-engine/internal/retry"
	"github.com/kjstillabower/weather-engine/internal/sources"
	"github.com/kjstillabower/weather-engine/internal/traffic"
	"github.com/kjstillabower/weather-engine/internal/validation"
)

var (
	// ErrAllSourcesFailed is matched when no source produced current conditions.
	ErrAllSourcesFailed = errors.New("All current weather sources failed")
	// ErrNoData is matched when a history request produced no records, fallbacks included.
	ErrNoData = errors.New("no weather data available")
)

// SourcesError carries every per-source failure of a request that produced
// no data.
type SourcesError struct {
	Kind     models.Kind
	Failures []error
}

func (e *SourcesError) Error() string {
	msg := ErrNoData.Error()
	if e.Kind == models.KindCurrent {
		msg = ErrAllSourcesFailed.Error()
	}
	if len(e.Failures) == 0 {
		return msg
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return msg + " (" + strings.Join(parts, "; ") + ")"
}

// Is matches ErrAllSourcesFailed for current requests and ErrNoData otherwise.
func (e *SourcesError) Is(target error) bool {
	if e.Kind == models.KindCurrent {
		return target == ErrAllSourcesFailed
	}
	return target == ErrNoData
}

func (e *SourcesError) Unwrap() []error { return e.Failures }

// Credentials resolves a provider credential by id.
type Credentials interface {
	GetKey(provider string) (string, bool)
}

// HistoryProvider serves batch daily history when no regular source does.
type HistoryProvider interface {
	DailyHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.DailyRecord, error)
}

// Fetcher performs a provider request.
type Fetcher interface {
	Get(ctx context.Context, source string, req sources.Request) ([]byte, error)
}

// BreakerSettings configures the per-source circuit breakers.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive exhausted failures that open the breaker
	MaxRequests      uint32        // trial requests allowed while half-open
	Interval         time.Duration // closed-state count reset period; 0 keeps counts
	Timeout          time.Duration // open duration before half-open
}

// Config wires an Engine. History and Tracker are optional.
type Config struct {
	Sources       []sources.Source
	Fetcher       Fetcher
	Store         *cache.Store
	Credentials   Credentials
	History       HistoryProvider
	Tracker       *traffic.Tracker
	Logger        *zap.Logger
	SourceTimeout time.Duration
	Retry         retry.Options
	Breaker       BreakerSettings
	Coalesce      bool
	MaxRangeDays  int
}

// Engine is the multi-source weather orchestrator. It is safe for concurrent use.
type Engine struct {
	sources       []sources.Source
	fetcher       Fetcher
	store         *cache.Store
	creds         Credentials
	history       HistoryProvider
	tracker       *traffic.Tracker
	logger        *zap.Logger
	breakers      map[string]*gobreaker.CircuitBreaker
	group         *singleflight.Group
	sourceTimeout time.Duration
	retry         retry.Options
	maxRangeDays  int
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = traffic.Default()
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 10 * time.Second
	}
	if cfg.Store == nil {
		cfg.Store = cache.NewStore(cache.NewInMemoryCache(), cache.StoreConfig{}, cfg.Logger)
	}

	e := &Engine{
		sources:       cfg.Sources,
		fetcher:       cfg.Fetcher,
		store:         cfg.Store,
		creds:         cfg.Credentials,
		history:       cfg.History,
		tracker:       cfg.Tracker,
		logger:        cfg.Logger,
		breakers:      make(map[string]*gobreaker.CircuitBreaker, len(cfg.Sources)),
		sourceTimeout: cfg.SourceTimeout,
		retry:         cfg.Retry,
		maxRangeDays:  cfg.MaxRangeDays,
	}
	if cfg.Coalesce {
		e.group = &singleflight.Group{}
	}
	for _, src := range cfg.Sources {
		e.breakers[src.ID()] = newBreaker(src.ID(), cfg.Breaker, cfg.Logger)
	}
	return e
}

func newBreaker(id string, s BreakerSettings, logger *zap.Logger) *gobreaker.CircuitBreaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := s.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	observability.CircuitBreakerState.WithLabelValues(id).Set(0)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        id,
		MaxRequests: maxRequests,
		Interval:    s.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		// Permanent errors describe the request, not the source's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, retry.ErrPermanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(observability.CircuitBreakerStateValue(to.String()))
			logger.Info("circuit breaker state change",
				zap.String("source", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// LoadCurrentWeather returns merged current conditions for a coordinate.
func (e *Engine) LoadCurrentWeather(ctx context.Context, lat, lon float64) (*models.CurrentConditions, error) {
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx, e.logger)
	key := e.store.Key(models.KindCurrent, "", "", lat, lon)
	if cached, ok := e.store.GetCurrent(ctx, key); ok {
		return cached, nil
	}

	return coalesce(e, ctx, key, func(ctx context.Context) (*models.CurrentConditions, error) {
		q := sources.Query{Lat: lat, Lon: lon}
		results, failures := fanOut(ctx, e, models.KindCurrent, q,
			func(s sources.Source, raw []byte) *models.CurrentConditions { return s.NormalizeCurrent(raw) },
			func(c *models.CurrentConditions) bool { return c == nil },
		)
		merged := merge.MergeCurrent(results)
		if merged == nil {
			logger.Error("all current weather sources failed",
				zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Int("failures", len(failures)))
			return nil, &SourcesError{Kind: models.KindCurrent, Failures: failures}
		}
		observability.MergeContributingSources.WithLabelValues(string(models.KindCurrent)).Observe(float64(len(merged.Sources)))
		e.store.SetCurrent(ctx, key, merged)
		return merged, nil
	})
}

// LoadHistory returns merged daily records for the inclusive range. When no
// source has daily data the history provider is tried before ErrNoData.
func (e *Engine) LoadHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.DailyRecord, error) {
	if err := validation.ValidateRange(lat, lon, start, end, e.maxRangeDays); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx, e.logger)
	key := e.store.Key(models.KindDaily, start, end, lat, lon)
	if cached, ok := e.store.GetDaily(ctx, key); ok {
		return cached, nil
	}

	return coalesce(e, ctx, key, func(ctx context.Context) ([]models.DailyRecord, error) {
		q := sources.Query{Lat: lat, Lon: lon, Start: start, End: end}
		results, failures := fanOut(ctx, e, models.KindDaily, q,
			func(s sources.Source, raw []byte) []models.DailyRecord { return s.NormalizeDaily(raw) },
			func(d []models.DailyRecord) bool { return len(d) == 0 },
		)
		merged := merge.MergeDaily(results)
		if len(merged) == 0 && e.history != nil {
			observability.FallbacksTotal.WithLabelValues(string(models.KindDaily)).Inc()
			logger.Info("no daily source data, using history provider",
				zap.String("start", start), zap.String("end", end))
			recs, err := e.history.DailyHistory(ctx, lat, lon, start, end)
			if err != nil {
				logger.Warn("history provider failed", zap.Error(err))
				failures = append(failures, err)
			} else {
				merged = merge.MergeDaily([]merge.Result[[]models.DailyRecord]{{Source: models.SourceMeteostat, Data: recs}})
			}
		}
		if len(merged) == 0 {
			return nil, &SourcesError{Kind: models.KindDaily, Failures: failures}
		}
		observability.MergeContributingSources.WithLabelValues(string(models.KindDaily)).Observe(float64(len(results)))
		e.store.SetDaily(ctx, key, end, merged)
		return merged, nil
	})
}

// LoadHourlyHistory returns merged hourly records for the inclusive range.
// When no source has hourly data, one record per day is synthesized at noon
// from LoadHistory and flagged DailyFallback.
func (e *Engine) LoadHourlyHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.HourlyRecord, error) {
	if err := validation.ValidateRange(lat, lon, start, end, e.maxRangeDays); err != nil {
		return nil, err
	}
	logger := observability.LoggerFromContext(ctx, e.logger)
	key := e.store.Key(models.KindHourly, start, end, lat, lon)
	if cached, ok := e.store.GetHourly(ctx, key); ok {
		return cached, nil
	}

	return coalesce(e, ctx, key, func(ctx context.Context) ([]models.HourlyRecord, error) {
		q := sources.Query{Lat: lat, Lon: lon, Start: start, End: end}
		results, failures := fanOut(ctx, e, models.KindHourly, q,
			func(s sources.Source, raw []byte) []models.HourlyRecord { return s.NormalizeHourly(raw) },
			func(h []models.HourlyRecord) bool { return len(h) == 0 },
		)
		merged := merge.MergeHourly(results)
		if len(merged) == 0 {
			observability.FallbacksTotal.WithLabelValues(string(models.KindHourly)).Inc()
			logger.Info("no hourly source data, falling back to daily records",
				zap.String("start", start), zap.String("end", end))
			daily, err := e.LoadHistory(ctx, lat, lon, start, end)
			if err != nil {
				var se *SourcesError
				if errors.As(err, &se) {
					failures = append(failures, se.Failures...)
				} else {
					failures = append(failures, fmt.Errorf("hourly fallback: %w", err))
				}
				return nil, &SourcesError{Kind: models.KindHourly, Failures: failures}
			}
			merged = HourlyFromDaily(daily)
		} else {
			observability.MergeContributingSources.WithLabelValues(string(models.KindHourly)).Observe(float64(len(results)))
		}
		e.store.SetHourly(ctx, key, end, merged)
		return merged, nil
	})
}

// HourlyFromDaily synthesizes one noon record per day.
func HourlyFromDaily(days []models.DailyRecord) []models.HourlyRecord {
	out := make([]models.HourlyRecord, 0, len(days))
	for _, d := range days {
		out = append(out, models.HourlyRecord{
			Time:                     merge.DailyKey(d.Date) + "T12:00:00",
			Temperature:              d.TempAvg,
			Humidity:                 d.HumidityAvg,
			Precipitation:            d.PrecipitationSum,
			PrecipitationProbability: d.PrecipitationProbability,
			WindSpeed:                d.WindSpeedMax,
			WeatherCode:              d.WeatherCode,
			Sources:                  append([]string(nil), d.Sources...),
			DailyFallback:            true,
		})
	}
	return out
}

// coalesce runs fn once per key across concurrent callers when enabled. The
// shared call is detached from any single caller's cancellation; each source
// call is still bounded by its own timeout.
func coalesce[T any](e *Engine, ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	if e.group == nil {
		return fn(ctx)
	}
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	if shared {
		e.logger.Debug("request coalesced", zap.String("key", key))
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
