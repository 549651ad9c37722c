package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage in sources, retry, cache and service.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/weather/current", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/weather/current").Observe(0.01)
	SourceCallsTotal.WithLabelValues("openmeteo", "success").Inc()
	SourceCallDuration.WithLabelValues("openmeteo", "success").Observe(0.1)
	SourceRetriesTotal.WithLabelValues("weatherapi").Inc()
	SourceOutcomesTotal.WithLabelValues("brightsky", "hourly", "transient").Inc()
	CacheHitsTotal.WithLabelValues("current").Inc()
	CacheMissesTotal.WithLabelValues("daily").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	CacheSweptEntriesTotal.Add(2)
	FallbacksTotal.WithLabelValues("hourly").Inc()
	MergeContributingSources.WithLabelValues("current").Observe(3)
	CircuitBreakerState.WithLabelValues("openweathermap").Set(CircuitBreakerStateValue("open"))
}

func TestCircuitBreakerStateValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"closed", 0},
		{"half-open", 1},
		{"open", 2},
		{"unknown", 0},
	}
	for _, tt := range tests {
		if got := CircuitBreakerStateValue(tt.in); got != tt.want {
			t.Errorf("CircuitBreakerStateValue(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
