package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/service"
	"github.com/kjstillabower/weather-engine/internal/traffic"
	"github.com/kjstillabower/weather-engine/internal/validation"
)

type mockEngine struct {
	current *models.CurrentConditions
	daily   []models.DailyRecord
	hourly  []models.HourlyRecord
	err     error
	sources []service.SourceInfo
	block   bool // if set, loads wait for ctx.Done()

	gotLat, gotLon float64
	gotStart       string
	gotEnd         string
}

func (m *mockEngine) wait(ctx context.Context) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (m *mockEngine) LoadCurrentWeather(ctx context.Context, lat, lon float64) (*models.CurrentConditions, error) {
	m.gotLat, m.gotLon = lat, lon
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return nil, err
	}
	return m.current, m.err
}

func (m *mockEngine) LoadHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.DailyRecord, error) {
	m.gotLat, m.gotLon, m.gotStart, m.gotEnd = lat, lon, start, end
	if err := validation.ValidateRange(lat, lon, start, end, 0); err != nil {
		return nil, err
	}
	return m.daily, m.err
}

func (m *mockEngine) LoadHourlyHistory(ctx context.Context, lat, lon float64, start, end string) ([]models.HourlyRecord, error) {
	m.gotLat, m.gotLon, m.gotStart, m.gotEnd = lat, lon, start, end
	if err := validation.ValidateRange(lat, lon, start, end, 0); err != nil {
		return nil, err
	}
	return m.hourly, m.err
}

func (m *mockEngine) Sources() []service.SourceInfo { return m.sources }

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func serve(t *testing.T, h *Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(h, zap.NewNop(), nil, time.Second)
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestGetCurrent_Success(t *testing.T) {
	eng := &mockEngine{current: &models.CurrentConditions{
		Temperature: models.Float(18.5),
		Humidity:    models.Float(60),
		Sources:     []string{models.SourceOpenMeteo},
	}}
	h := NewHandler(eng, traffic.NewTracker(time.Minute), nil, zap.NewNop())

	w := serve(t, h, "/weather/current?lat=52.52&lon=13.405")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got models.CurrentConditions
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got.Temperature != 18.5 || got.Sources[0] != models.SourceOpenMeteo {
		t.Errorf("body = %+v", got)
	}
	if got.Pressure != nil {
		t.Errorf("Pressure = %v, want null", *got.Pressure)
	}
	if eng.gotLat != 52.52 || eng.gotLon != 13.405 {
		t.Errorf("engine got %v,%v", eng.gotLat, eng.gotLon)
	}
}

func TestGetCurrent_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing lat", "/weather/current?lon=1"},
		{"non-numeric lon", "/weather/current?lat=1&lon=east"},
		{"lat out of range", "/weather/current?lat=95&lon=0"},
		{"lon out of range", "/weather/current?lat=0&lon=-181"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{}, traffic.NewTracker(time.Minute), nil, zap.NewNop())
			w := serve(t, h, tc.path)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			body := decodeError(t, w)
			if body.Error.Code != "INVALID_REQUEST" {
				t.Errorf("code = %q, want INVALID_REQUEST", body.Error.Code)
			}
			if body.Error.RequestID == "" || body.Error.RequestID != w.Header().Get("X-Correlation-ID") {
				t.Errorf("requestId = %q, header = %q", body.Error.RequestID, w.Header().Get("X-Correlation-ID"))
			}
		})
	}
}

func TestGetCurrent_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{"all sources failed", &service.SourcesError{Kind: models.KindCurrent}, "All current weather sources failed"},
		{"other", errors.New("boom"), "Unable to fetch weather data"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{err: tc.err}, traffic.NewTracker(time.Minute), nil, zap.NewNop())
			w := serve(t, h, "/weather/current?lat=1&lon=2")
			if w.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want 503", w.Code)
			}
			body := decodeError(t, w)
			if body.Error.Code != "UPSTREAM_UNAVAILABLE" || body.Error.Message != tc.wantMessage {
				t.Errorf("error = %+v", body.Error)
			}
		})
	}
}

func TestGetCurrent_Timeout(t *testing.T) {
	h := NewHandler(&mockEngine{block: true}, traffic.NewTracker(time.Minute), nil, zap.NewNop())
	router := NewRouter(h, zap.NewNop(), nil, 20*time.Millisecond)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/weather/current?lat=1&lon=2", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestGetDaily(t *testing.T) {
	eng := &mockEngine{daily: []models.DailyRecord{
		{Date: "2024-01-01", TempMax: models.Float(5), Sources: []string{models.SourceOpenMeteo}},
		{Date: "2024-01-02", TempMax: models.Float(6), Sources: []string{models.SourceOpenMeteo}},
	}}
	h := NewHandler(eng, traffic.NewTracker(time.Minute), nil, zap.NewNop())

	w := serve(t, h, "/weather/daily?lat=1&lon=2&start=2024-01-01&end=2024-01-02")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	var got struct {
		Start   string               `json:"start"`
		End     string               `json:"end"`
		Records []models.DailyRecord `json:"records"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Start != "2024-01-01" || got.End != "2024-01-02" || len(got.Records) != 2 {
		t.Errorf("body = %+v", got)
	}
}

func TestGetDaily_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"bad date", "/weather/daily?lat=1&lon=2&start=yesterday&end=2024-01-02", nil, 400, "INVALID_REQUEST"},
		{"reversed", "/weather/daily?lat=1&lon=2&start=2024-01-05&end=2024-01-02", nil, 400, "INVALID_REQUEST"},
		{"no data", "/weather/daily?lat=1&lon=2&start=2024-01-01&end=2024-01-02", &service.SourcesError{Kind: models.KindDaily}, 503, "UPSTREAM_UNAVAILABLE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{err: tc.err}, traffic.NewTracker(time.Minute), nil, zap.NewNop())
			w := serve(t, h, tc.path)
			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if body := decodeError(t, w); body.Error.Code != tc.wantErr {
				t.Errorf("code = %q, want %q", body.Error.Code, tc.wantErr)
			}
		})
	}
}

func TestGetHourly(t *testing.T) {
	eng := &mockEngine{hourly: []models.HourlyRecord{
		{Time: "2024-01-01T12:00:00", Temperature: models.Float(3), Sources: []string{models.SourceOpenMeteo}, DailyFallback: true},
	}}
	h := NewHandler(eng, traffic.NewTracker(time.Minute), nil, zap.NewNop())

	w := serve(t, h, "/weather/hourly?lat=1&lon=2&start=2024-01-01&end=2024-01-01")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"daily_fallback":true`) {
		t.Errorf("body = %s, want daily_fallback flag", w.Body.String())
	}
	if eng.gotStart != "2024-01-01" || eng.gotEnd != "2024-01-01" {
		t.Errorf("engine range = %s..%s", eng.gotStart, eng.gotEnd)
	}
}

func TestGetSources(t *testing.T) {
	tracker := traffic.NewTracker(time.Minute)
	tracker.Record(models.SourceOpenMeteo, traffic.OutcomeSuccess, nil)
	eng := &mockEngine{sources: []service.SourceInfo{
		{ID: models.SourceOpenMeteo, Priority: 1, Kinds: []string{"current"}, Configured: true, Breaker: "closed"},
	}}
	h := NewHandler(eng, tracker, &HealthConfig{Window: time.Minute}, zap.NewNop())

	w := serve(t, h, "/sources")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got struct {
		Sources []service.SourceInfo  `json:"sources"`
		Stats   []traffic.SourceStats `json:"stats"`
		Window  string                `json:"window"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Sources) != 1 || len(got.Stats) != 1 || got.Stats[0].Successes != 1 || got.Window != "1m0s" {
		t.Errorf("body = %+v", got)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*traffic.Tracker)
		cfg        HealthConfig
		shutdown   bool
		wantStatus string
		wantCode   int
	}{
		{
			name:       "no traffic yet",
			wantStatus: "healthy",
			wantCode:   200,
		},
		{
			name: "one healthy source",
			setup: func(tr *traffic.Tracker) {
				tr.Record("openmeteo", traffic.OutcomeSuccess, nil)
				tr.Record("weatherapi", traffic.OutcomePermanent, errors.New("invalid API key"))
			},
			wantStatus: "healthy",
			wantCode:   200,
		},
		{
			name: "no healthy source",
			setup: func(tr *traffic.Tracker) {
				tr.Record("openmeteo", traffic.OutcomeTransient, errors.New("timeout"))
				tr.Record("weatherapi", traffic.OutcomePermanent, errors.New("invalid API key"))
			},
			wantStatus: "degraded",
			wantCode:   503,
		},
		{
			name:       "cache unreachable",
			cfg:        HealthConfig{CachePing: func(context.Context) error { return errors.New("dial tcp: refused") }},
			wantStatus: "degraded",
			wantCode:   503,
		},
		{
			name: "overloaded",
			setup: func(tr *traffic.Tracker) {
				for i := 0; i < 10; i++ {
					tr.RecordDenied()
				}
			},
			cfg:        HealthConfig{Window: time.Second, RateLimitRPS: 10, OverloadThresholdPct: 50},
			wantStatus: "overloaded",
			wantCode:   503,
		},
		{
			name:       "shutting down",
			shutdown:   true,
			wantStatus: "shutting-down",
			wantCode:   503,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tracker := traffic.NewTracker(time.Minute)
			if tc.setup != nil {
				tc.setup(tracker)
			}
			SetShuttingDown(tc.shutdown)
			defer SetShuttingDown(false)

			cfg := tc.cfg
			h := NewHandler(&mockEngine{}, tracker, &cfg, zap.NewNop())
			w := serve(t, h, "/health")
			if w.Code != tc.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tc.wantCode)
			}
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
		})
	}
}

func TestGetHealth_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracker := traffic.NewTracker(time.Minute)
	h := NewHandler(&mockEngine{}, tracker, nil, zap.New(core))

	serve(t, h, "/health")
	tracker.Record("openmeteo", traffic.OutcomeTransient, errors.New("HTTP 503"))
	serve(t, h, "/health")

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "healthy" || fields["current_status"] != "degraded" {
		t.Errorf("fields = %v", fields)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(&mockEngine{current: &models.CurrentConditions{Sources: []string{"openmeteo"}}}, traffic.NewTracker(time.Minute), nil, zap.NewNop())
	serve(t, h, "/weather/current?lat=1&lon=2")

	w := serve(t, h, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := fmt.Sprintf(`route=%q`, "/weather/current")
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("metrics output missing %s", want)
	}
}
