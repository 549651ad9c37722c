package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-engine/internal/merge"
	"github.com/kjstillabower/weather-engine/internal/models"
	"github.com/kjstillabower/weather-engine/internal/observability"
	"github.com/kjstillabower/weather-engine/internal/retry"
	"github.com/kjstillabower/weather-engine/internal/sources"
	"github.com/kjstillabower/weather-engine/internal/traffic"
)

// eligible reports whether src can serve kind with the configured credentials,
// returning the credential to use.
func (e *Engine) eligible(src sources.Source, kind models.Kind) (string, bool) {
	if !src.Supports(kind) {
		return "", false
	}
	cred := src.Credential()
	if cred == "" {
		return "", true
	}
	if e.creds == nil {
		return "", false
	}
	key, ok := e.creds.GetKey(cred)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

// fanOut calls every eligible source concurrently and collects the usable
// results. One source failing never affects another.
func fanOut[T any](
	ctx context.Context,
	e *Engine,
	kind models.Kind,
	q sources.Query,
	normalize func(sources.Source, []byte) T,
	empty func(T) bool,
) ([]merge.Result[T], []error) {
	logger := observability.LoggerFromContext(ctx, e.logger)

	type slot struct {
		data T
		ok   bool
		err  error
	}
	var (
		wg    sync.WaitGroup
		slots = make([]slot, len(e.sources))
	)
	for i, src := range e.sources {
		key, ok := e.eligible(src, kind)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, src sources.Source, key string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slots[i].err = fmt.Errorf("%s: panic: %v", src.ID(), r)
					e.outcome(logger, src.ID(), kind, traffic.OutcomeTransient, slots[i].err)
				}
			}()

			data, err := fetch(ctx, e, src, kind, q, key, normalize)
			switch {
			case err != nil:
				slots[i].err = err
				e.outcome(logger, src.ID(), kind, classify(err), err)
			case empty(data):
				e.outcome(logger, src.ID(), kind, traffic.OutcomeEmpty, nil)
			default:
				slots[i] = slot{data: data, ok: true}
				e.outcome(logger, src.ID(), kind, traffic.OutcomeSuccess, nil)
			}
		}(i, src, key)
	}
	wg.Wait()

	var (
		results  []merge.Result[T]
		failures []error
	)
	for i, s := range slots {
		switch {
		case s.ok:
			results = append(results, merge.Result[T]{Source: e.sources[i].ID(), Data: s.data})
		case s.err != nil:
			failures = append(failures, s.err)
		}
	}
	return results, failures
}

func fetch[T any](
	ctx context.Context,
	e *Engine,
	src sources.Source,
	kind models.Kind,
	q sources.Query,
	key string,
	normalize func(sources.Source, []byte) T,
) (T, error) {
	var zero T
	req, err := src.Request(kind, q, key)
	if err != nil {
		return zero, err
	}
	raw, err := e.call(ctx, src.ID(), req)
	if err != nil {
		return zero, err
	}
	return normalize(src, raw), nil
}

// call runs the retried request behind the source's circuit breaker. Each
// attempt is bounded by the per-source timeout.
func (e *Engine) call(ctx context.Context, id string, req sources.Request) ([]byte, error) {
	op := func(ctx context.Context) ([]byte, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
		defer cancel()
		return e.fetcher.Get(attemptCtx, id, req)
	}
	cb, ok := e.breakers[id]
	if !ok {
		return retry.Do(ctx, id, op, e.retry)
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return retry.Do(ctx, id, op, e.retry)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w: %w", id, sources.ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func classify(err error) traffic.Outcome {
	switch {
	case errors.Is(err, sources.ErrCircuitOpen):
		return traffic.OutcomeOpen
	case errors.Is(err, retry.ErrPermanent):
		return traffic.OutcomePermanent
	}
	return traffic.OutcomeTransient
}

func (e *Engine) outcome(logger *zap.Logger, source string, kind models.Kind, o traffic.Outcome, err error) {
	e.tracker.Record(source, o, err)
	observability.SourceOutcomesTotal.WithLabelValues(source, string(kind), string(o)).Inc()
	if err != nil {
		logger.Warn("source failed",
			zap.String("source", source),
			zap.String("kind", string(kind)),
			zap.String("outcome", string(o)),
			zap.String("category", string(sources.CategorizeError(err))),
			zap.Error(err),
		)
	}
}
