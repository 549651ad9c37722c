package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/retry"
)

func TestNewMeteostatHistory_RequiresKey(t *testing.T) {
	h, err := NewMeteostatHistory(NewFetcher(time.Second), "", "", retry.Options{})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
	if h != nil {
		t.Error("expected nil provider on error")
	}
}

func TestMeteostatHistory_DailyHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/point/daily" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-RapidAPI-Key"); got != "secret" {
			t.Errorf("X-RapidAPI-Key = %q", got)
		}
		if got := r.URL.Query().Get("start"); got != "2024-01-01" {
			t.Errorf("start = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{},"data":[
			{"date":"2024-01-01","tavg":null,"tmin":-1,"tmax":5,"prcp":null,"wspd":12.2,"tsun":90},
			{"date":"2024-01-02","tavg":3.3,"tmin":1,"tmax":6,"prcp":2.1,"wspd":null,"tsun":null}
		]}`))
	}))
	defer server.Close()

	h, err := NewMeteostatHistory(NewFetcher(2*time.Second), server.URL, "secret", retry.Options{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("NewMeteostatHistory() error = %v", err)
	}
	got, err := h.DailyHistory(context.Background(), 52.52, 13.41, "2024-01-01", "2024-01-02")
	if err != nil {
		t.Fatalf("DailyHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !approx(got[0].TempAvg, 2) {
		t.Errorf("TempAvg = %v, want 2", got[0].TempAvg)
	}
	if !approx(got[0].SunshineHours, 1.5) {
		t.Errorf("SunshineHours = %v, want 1.5", got[0].SunshineHours)
	}
	if !approx(got[0].PrecipitationSum, 0) {
		t.Errorf("PrecipitationSum = %v, want 0", got[0].PrecipitationSum)
	}
	if got[0].WeatherCode != nil {
		t.Errorf("WeatherCode = %d, want nil", *got[0].WeatherCode)
	}
	if got[0].WindSpeedMax != nil {
		t.Errorf("WindSpeedMax = %v, want nil (wspd is a daily mean)", *got[0].WindSpeedMax)
	}
	if len(got[1].Sources) != 1 || got[1].Sources[0] != models.SourceMeteostat {
		t.Errorf("Sources = %v", got[1].Sources)
	}
}

func TestMeteostatHistory_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	h, err := NewMeteostatHistory(NewFetcher(2*time.Second), server.URL, "secret", retry.Options{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("NewMeteostatHistory() error = %v", err)
	}
	_, err = h.DailyHistory(context.Background(), 1, 2, "2024-01-01", "2024-01-02")
	if !errors.Is(err, retry.ErrPermanent) || !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("error = %v, want permanent invalid key", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}
