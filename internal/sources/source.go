// Package sources holds the weather provider adapters. Each adapter builds its
// provider's request URLs and normalizes raw JSON bodies into the canonical
// model; Fetcher performs the HTTP calls.
package sources

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/retry"
)

// Adapter converts raw provider bodies into canonical records. Implementations
// never fail: unusable input yields nil.
type Adapter interface {
	NormalizeCurrent(raw []byte) *models.CurrentConditions
	NormalizeDaily(raw []byte) []models.DailyRecord
	NormalizeHourly(raw []byte) []models.HourlyRecord
}

// Query is the coordinate and inclusive ISO date range of a request.
// Start and End are empty for current conditions.
type Query struct {
	Lat   float64
	Lon   float64
	Start string
	End   string
}

// Source is a weather provider.
type Source interface {
	Adapter
	ID() string
	// Credential names the key looked up for this source, or "" when the
	// provider is free.
	Credential() string
	Supports(kind models.Kind) bool
	Request(kind models.Kind, q Query, key string) (Request, error)
}

// Endpoints overrides provider base URLs. Empty fields use the public APIs.
type Endpoints struct {
	OpenMeteo        string
	OpenMeteoArchive string
	OpenWeatherMap   string
	OWMHistory       string
	VisualCrossing   string
	WeatherAPI       string
	BrightSky        string
}

// All returns every source in merge priority order.
func All(ep Endpoints) []Source {
	return []Source{
		NewOpenMeteo(ep.OpenMeteo, ep.OpenMeteoArchive),
		NewOpenWeatherMap(ep.OpenWeatherMap, ep.OWMHistory),
		NewVisualCrossing(ep.VisualCrossing),
		NewWeatherAPI(ep.WeatherAPI),
		NewBrightSky(ep.BrightSky),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func buildURL(base, path string, params url.Values) string {
	return fmt.Sprintf("%s%s?%s", base, path, params.Encode())
}

func requireKey(source, key string) error {
	if key == "" {
		return fmt.Errorf("%s: %w: %w", source, ErrMissingCredential, retry.ErrPermanent)
	}
	return nil
}

func unsupported(source string, kind models.Kind) error {
	return fmt.Errorf("%s %s: %w: %w", source, kind, ErrUnsupportedKind, retry.ErrPermanent)
}
