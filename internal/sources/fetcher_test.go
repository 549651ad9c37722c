package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
	"github.com/kjstillabower/weather-engine/internal/retry"
)

func TestFetcher_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "req-123" {
			t.Errorf("X-Correlation-ID = %q, want req-123", got)
		}
		if got := r.Header.Get("X-Custom"); got != "yes" {
			t.Errorf("X-Custom = %q, want yes", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ctx := observability.WithCorrelationID(context.Background(), "req-123")
	h := http.Header{}
	h.Set("X-Custom", "yes")
	body, err := NewFetcher(2*time.Second).Get(ctx, "test", Request{URL: server.URL, Header: h})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestFetcher_Get_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErr    error
		wantClient bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidAPIKey, true},
		{"forbidden", http.StatusForbidden, ErrInvalidAPIKey, true},
		{"not found", http.StatusNotFound, ErrNotFound, true},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, nil, true},
		{"internal error", http.StatusInternalServerError, ErrUpstreamFailure, false},
		{"bad gateway", http.StatusBadGateway, ErrUpstreamFailure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			_, err := NewFetcher(2*time.Second).Get(context.Background(), "test", Request{URL: server.URL})
			if err == nil {
				t.Fatal("Get() expected error")
			}
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Get() error = %T, want *HTTPError", err)
			}
			if httpErr.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", httpErr.StatusCode(), tt.status)
			}
			if !strings.Contains(httpErr.Body, "nope") {
				t.Errorf("Body = %q, want snippet", httpErr.Body)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
			}
			if got := retry.IsClientError(err); got != tt.wantClient {
				t.Errorf("IsClientError() = %v, want %v", got, tt.wantClient)
			}
		})
	}
}

func TestFetcher_Get_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := NewFetcher(50*time.Millisecond).Get(context.Background(), "slow", Request{URL: server.URL})
	if err == nil {
		t.Fatal("Get() expected timeout error")
	}
	if got := CategorizeError(err); got != ErrorCategoryTimeout {
		t.Errorf("CategorizeError() = %v, want timeout", got)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{204, "success"},
		{404, "client_error"},
		{429, "rate_limited"},
		{503, "server_error"},
		{302, "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid API key", &HTTPError{Status: 401}, ErrorCategoryInvalidAPIKey},
		{"missing credential", requireKey("x", ""), ErrorCategoryInvalidAPIKey},
		{"not found", fmt.Errorf("wrapped: %w", &HTTPError{Status: 404}), ErrorCategoryNotFound},
		{"rate limited", &HTTPError{Status: 429}, ErrorCategoryRateLimited},
		{"upstream", &HTTPError{Status: 503}, ErrorCategoryUpstream5xx},
		{"other 4xx", &HTTPError{Status: 422}, ErrorCategoryClient},
		{"circuit open", fmt.Errorf("openmeteo: %w", ErrCircuitOpen), ErrorCategoryCircuitOpen},
		{"network in message", errors.New("connection refused"), ErrorCategoryNetwork},
		{"parse in message", errors.New("parse response: invalid json"), ErrorCategoryParsing},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequest_URLs(t *testing.T) {
	q := Query{Lat: 52.52, Lon: 13.405, Start: "2024-01-01", End: "2024-01-03"}
	tests := []struct {
		name      string
		src       Source
		kind      models.Kind
		wantPath  string
		wantQuery map[string]string
	}{
		{
			name: "openmeteo current", src: NewOpenMeteo("http://om", "http://arch"), kind: models.KindCurrent,
			wantPath:  "http://om/v1/forecast",
			wantQuery: map[string]string{"latitude": "52.5200", "longitude": "13.4050", "wind_speed_unit": "kmh"},
		},
		{
			name: "openmeteo daily", src: NewOpenMeteo("http://om", "http://arch"), kind: models.KindDaily,
			wantPath:  "http://arch/v1/archive",
			wantQuery: map[string]string{"start_date": "2024-01-01", "end_date": "2024-01-03"},
		},
		{
			name: "owm hourly", src: NewOpenWeatherMap("http://owm", "http://hist"), kind: models.KindHourly,
			wantPath:  "http://hist/data/2.5/history/city",
			wantQuery: map[string]string{"appid": "KEY", "start": "1704067200", "end": "1704326399", "type": "hour"},
		},
		{
			name: "visualcrossing daily", src: NewVisualCrossing("http://vc"), kind: models.KindDaily,
			wantPath:  "http://vc/VisualCrossingWebServices/rest/services/timeline/52.5200,13.4050/2024-01-01/2024-01-03",
			wantQuery: map[string]string{"key": "KEY", "include": "days", "unitGroup": "metric"},
		},
		{
			name: "weatherapi hourly", src: NewWeatherAPI("http://wa"), kind: models.KindHourly,
			wantPath:  "http://wa/v1/history.json",
			wantQuery: map[string]string{"key": "KEY", "q": "52.5200,13.4050", "dt": "2024-01-01", "end_dt": "2024-01-03"},
		},
		{
			name: "brightsky hourly", src: NewBrightSky("http://bs"), kind: models.KindHourly,
			wantPath:  "http://bs/weather",
			wantQuery: map[string]string{"date": "2024-01-01", "last_date": "2024-01-04"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.src.Request(tt.kind, q, "KEY")
			if err != nil {
				t.Fatalf("Request() error = %v", err)
			}
			u, err := url.Parse(req.URL)
			if err != nil {
				t.Fatalf("url.Parse() error = %v", err)
			}
			path := u.Scheme + "://" + u.Host + u.Path
			if path != tt.wantPath {
				t.Errorf("path = %q, want %q", path, tt.wantPath)
			}
			for k, want := range tt.wantQuery {
				if got := u.Query().Get(k); got != want {
					t.Errorf("query %s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestRequest_Errors(t *testing.T) {
	q := Query{Lat: 1, Lon: 2}

	_, err := NewVisualCrossing("").Request(models.KindCurrent, q, "")
	if !errors.Is(err, ErrMissingCredential) || !errors.Is(err, retry.ErrPermanent) {
		t.Errorf("missing key: error = %v, want ErrMissingCredential and ErrPermanent", err)
	}

	_, err = NewBrightSky("").Request(models.KindDaily, q, "")
	if !errors.Is(err, ErrUnsupportedKind) || !errors.Is(err, retry.ErrPermanent) {
		t.Errorf("unsupported kind: error = %v, want ErrUnsupportedKind", err)
	}

	if _, err := NewOpenMeteo("", "").Request(models.KindCurrent, q, ""); err != nil {
		t.Errorf("free source without key: error = %v", err)
	}
}
