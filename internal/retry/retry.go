// Package retry runs idempotent operations with bounded retries and
// exponential backoff. Client errors (HTTP 4xx, invalid credentials) are never
// retried; callers can tell them apart from exhausted transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjstillabower/weather-engine/internal/observability"
)

var (
	// ErrPermanent marks errors that retrying cannot fix.
	ErrPermanent = errors.New("permanent error")
	// ErrRetriesExhausted is returned after the last transient failure.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Defaults applied to zero Options fields.
const (
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = 300 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Options configures Do.
type Options struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return o
}

// Delay returns the wait before the retry following the given 1-based attempt:
// BaseDelay * BackoffMultiplier^(attempt-1).
func (o Options) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(o.BaseDelay) * math.Pow(o.BackoffMultiplier, float64(attempt-1)))
}

// PermanentError is returned when an operation failed with a client error.
type PermanentError struct {
	Name string
	Err  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: permanent failure: %v", e.Name, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Is matches ErrPermanent.
func (e *PermanentError) Is(target error) bool { return target == ErrPermanent }

// ExhaustedError is returned when every attempt failed with a transient error.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: exhausted %d attempts: %v", e.Name, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is matches ErrRetriesExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// statusCoder is implemented by errors carrying an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// IsClientError reports whether err cannot be fixed by retrying: an HTTP 4xx
// status, an error wrapping ErrPermanent, or an auth marker in the message.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		if code >= 400 && code < 500 {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid api key") || strings.Contains(msg, "unauthorized")
}

// sleep waits for d or until ctx is done. Replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls op until it succeeds, fails with a client error, or runs out of
// attempts. name labels errors and the retry metric.
func Do[T any](ctx context.Context, name string, op func(context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()
	var zero T
	var lastErr error

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsClientError(err) {
			return zero, &PermanentError{Name: name, Err: err}
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		}

		observability.SourceRetriesTotal.WithLabelValues(name).Inc()
		if err := sleep(ctx, opts.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("%s: backoff interrupted: %w", name, err)
		}
	}

	return zero, &ExhaustedError{Name: name, Attempts: opts.MaxAttempts, Err: lastErr}
}
