package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
	"github.com/kjstillabower/weather-engine/internal/service"
	"github.com/kjstillabower/weather-engine/internal/traffic"
	"github.com/kjstillabower/weather-engine/internal/validation"
)

// Engine is the weather orchestrator served by the handlers.
type Engine interface {
	LoadCurrentWeather(ctx context.Context, lat, lon float64) (*models.CurrentConditions, error)
	LoadHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.DailyRecord, error)
	LoadHourlyHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.HourlyRecord, error)
	Sources() []service.SourceInfo
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window               time.Duration // outcome window for per-source status
	RateLimitRPS         int
	OverloadThresholdPct int
	StartTime            time.Time
	Version              string
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine           Engine
	tracker          *traffic.Tracker
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil tracker uses the process-wide one.
func NewHandler(engine Engine, tracker *traffic.Tracker, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if tracker == nil {
		tracker = traffic.Default()
	}
	if healthConfig == nil {
		healthConfig = &HealthConfig{}
	}
	if healthConfig.Window <= 0 {
		healthConfig.Window = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:       engine,
		tracker:      tracker,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// rangeResponse wraps daily and hourly records with the request echo.
type rangeResponse[T any] struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Start   string  `json:"start"`
	End     string  `json:"end"`
	Records []T     `json:"records"`
}

// GetCurrent handles GET /weather/current?lat=&lon=.
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}
	result, err := h.engine.LoadCurrentWeather(r.Context(), lat, lon)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetDaily handles GET /weather/daily?lat=&lon=&start=&end=.
func (h *Handler) GetDaily(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}
	start, end := queryRange(r)
	records, err := h.engine.LoadHistory(r.Context(), lat, lon, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse[models.DailyRecord]{Lat: lat, Lon: lon, Start: start, End: end, Records: records})
}

// GetHourly handles GET /weather/hourly?lat=&lon=&start=&end=.
func (h *Handler) GetHourly(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}
	start, end := queryRange(r)
	records, err := h.engine.LoadHourlyHistory(r.Context(), lat, lon, start, end)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rangeResponse[models.HourlyRecord]{Lat: lat, Lon: lon, Start: start, End: end, Records: records})
}

// GetSources handles GET /sources: configured sources plus recent outcomes.
func (h *Handler) GetSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": h.engine.Sources(),
		"stats":   h.tracker.Snapshot(h.healthConfig.Window),
		"window":  h.healthConfig.Window.String(),
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	result := h.computeHealthStatus(r.Context(), checks)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := h.healthConfig.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-engine",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > cache unreachable > overloaded > no usable source > healthy.
// checks is filled with per-component results.
func (h *Handler) computeHealthStatus(ctx context.Context, checks map[string]string) healthResult {
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}

	if h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
		}
		checks["cache"] = "healthy"
	}

	window := h.healthConfig.Window
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadThresholdPct > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * window.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(h.tracker.DenialCount(window)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}

	usable, observed := 0, 0
	for _, s := range h.tracker.Snapshot(window) {
		checks["source:"+s.Source] = s.Status
		if s.Status == traffic.StatusUnknown {
			continue
		}
		observed++
		if s.Status == traffic.StatusHealthy {
			usable++
		}
	}
	if observed > 0 && usable == 0 {
		return healthResult{"degraded", http.StatusServiceUnavailable, "no_healthy_source"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// parseCoordinates reads lat and lon query parameters, writing a 400 when
// either is missing or not a number. Range checks happen in the engine.
func parseCoordinates(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "lat must be a number")
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "lon must be a number")
		return 0, 0, false
	}
	return lat, lon, true
}

func queryRange(r *http.Request) (string, string) {
	q := r.URL.Query()
	return strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps engine errors: validation failures are 400, anything
// else is 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", verr.Error())
		return
	}
	message := "Unable to fetch weather data"
	switch {
	case errors.Is(err, service.ErrAllSourcesFailed):
		message = service.ErrAllSourcesFailed.Error()
	case errors.Is(err, service.ErrNoData):
		message = "No weather data available for the requested range"
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", message)
	observability.LoggerFromContext(r.Context(), nil).Debug("upstream error", zap.Error(err))
}
