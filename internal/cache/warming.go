package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
)

// CurrentLoader is implemented by the engine. Loading through it populates the
// cache as a side effect.
type CurrentLoader interface {
	LoadCurrentWeather(ctx context.Context, lat, lon float64) (*models.CurrentConditions, error)
}

// Coordinate is a tracked location.
type Coordinate struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// CacheWarmer prefetches current conditions for tracked coordinates.
type CacheWarmer struct {
	loader CurrentLoader
	logger *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given loader and logger.
func NewCacheWarmer(loader CurrentLoader, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{loader: loader, logger: logger}
}

// Warm loads every coordinate concurrently. Returns the joined errors of the
// coordinates that failed.
func (w *CacheWarmer) Warm(ctx context.Context, coords []Coordinate) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("coordinates", len(coords)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range coords {
		wg.Add(1)
		go func(c Coordinate) {
			defer wg.Done()
			if _, err := w.loader.LoadCurrentWeather(ctx, c.Lat, c.Lon); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", c, err))
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("coordinates", len(coords)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", time.Since(start).Seconds()),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}
