package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kjstillabower/weather-engine/internal/observability"
)

const (
	maxBodyBytes  = 8 << 20
	maxErrorBytes = 256
)

// Request is a provider GET request.
type Request struct {
	URL    string
	Header http.Header
}

// Fetcher performs provider GETs. Each call is bounded by timeout.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher with a per-call timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Get fetches req and returns the raw body of a 2xx response.
func (f *Fetcher) Get(ctx context.Context, source string, req Request) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		observability.SourceCallsTotal.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("%s: build request: %w", source, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		httpReq.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		observability.SourceCallsTotal.WithLabelValues(source, "error").Inc()
		observability.SourceCallDuration.WithLabelValues(source, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s: request timeout: %w", source, err)
		}
		return nil, fmt.Errorf("%s: http request failed: %w", source, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.SourceCallsTotal.WithLabelValues(source, status).Inc()
	observability.SourceCallDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return nil, &HTTPError{
			Source: source,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", source, err)
	}
	return body, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
