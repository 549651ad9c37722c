// Package traffic keeps sliding windows of per-source fetch outcomes. The
// engine records into it; /health and `weatherctl sources` read snapshots.
package traffic

import (
	"sort"
	"sync"
	"time"

	"github.com/kjstillabower/weather-engine/internal/models"
)

// Outcome is the final result of one source call after retries.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeEmpty     Outcome = "empty"     // 2xx but nothing usable
	OutcomePermanent Outcome = "permanent" // client error; not retried
	OutcomeTransient Outcome = "transient" // retries exhausted
	OutcomeOpen      Outcome = "open"      // short-circuited by the breaker
)

// Source status values reported by Snapshot.
const (
	StatusUnknown  = "unknown"
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusUnusable = "unusable"
)

const defaultMaxAge = 15 * time.Minute

var defaultTracker = NewTracker(defaultMaxAge)

// Record records an outcome for source on the default tracker.
func Record(source string, o Outcome, err error) {
	defaultTracker.Record(source, o, err)
}

// RecordDenied records an API rate-limit denial (429) on the default tracker.
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// Snapshot returns per-source statistics of the default tracker.
func Snapshot(window time.Duration) []SourceStats {
	return defaultTracker.Snapshot(window)
}

// DenialCount returns denials within the window on the default tracker.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears the default tracker. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Default returns the process-wide tracker.
func Default() *Tracker {
	return defaultTracker
}

// SourceStats summarizes one source over a window.
type SourceStats struct {
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	Successes   int        `json:"successes"`
	Empty       int        `json:"empty"`
	Permanent   int        `json:"permanent_failures"`
	Transient   int        `json:"transient_failures"`
	Open        int        `json:"short_circuited"`
	ErrorRate   float64    `json:"error_rate"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

type sourceWindow struct {
	times       map[Outcome][]time.Time
	lastError   string
	lastErrorAt time.Time
}

// Tracker maintains sliding windows of outcome timestamps per source.
type Tracker struct {
	mu      sync.Mutex
	maxAge  time.Duration
	sources map[string]*sourceWindow
	denied  []time.Time
	now     func() time.Time
}

// NewTracker keeps outcomes for maxAge.
func NewTracker(maxAge time.Duration) *Tracker {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Tracker{
		maxAge:  maxAge,
		sources: make(map[string]*sourceWindow),
		now:     time.Now,
	}
}

// Record appends an outcome for source. err is kept as the last error for
// failure outcomes.
func (t *Tracker) Record(source string, o Outcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	w, ok := t.sources[source]
	if !ok {
		w = &sourceWindow{times: make(map[Outcome][]time.Time)}
		t.sources[source] = w
	}
	w.times[o] = append(w.times[o], now)
	if err != nil && o != OutcomeSuccess {
		w.lastError = err.Error()
		w.lastErrorAt = now
	}
	t.pruneLocked(now)
}

// RecordDenied records an API rate-limit denial.
func (t *Tracker) RecordDenied() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.denied = append(t.denied, now)
	t.pruneLocked(now)
}

// DenialCount returns the number of denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.denied, t.now().Add(-window))
}

// Snapshot returns statistics for every source seen, in merge priority order.
// A source whose only failures are permanent is unusable; one failing at
// least half its calls transiently is degraded.
func (t *Tracker) Snapshot(window time.Duration) []SourceStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)

	out := make([]SourceStats, 0, len(t.sources))
	for id, w := range t.sources {
		s := SourceStats{
			Source:    id,
			Successes: countInWindow(w.times[OutcomeSuccess], cutoff),
			Empty:     countInWindow(w.times[OutcomeEmpty], cutoff),
			Permanent: countInWindow(w.times[OutcomePermanent], cutoff),
			Transient: countInWindow(w.times[OutcomeTransient], cutoff),
			Open:      countInWindow(w.times[OutcomeOpen], cutoff),
		}
		failures := s.Permanent + s.Transient + s.Open
		if total := failures + s.Successes + s.Empty; total > 0 {
			s.ErrorRate = float64(failures) / float64(total)
		}
		s.Status = status(s)
		if !w.lastErrorAt.IsZero() && !w.lastErrorAt.Before(cutoff) {
			at := w.lastErrorAt
			s.LastError = w.lastError
			s.LastErrorAt = &at
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := models.PriorityRank(out[i].Source), models.PriorityRank(out[j].Source)
		if ri != rj {
			return ri < rj
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func status(s SourceStats) string {
	switch {
	case s.Successes+s.Empty+s.Permanent+s.Transient+s.Open == 0:
		return StatusUnknown
	case s.Permanent > 0 && s.Successes == 0 && s.Empty == 0:
		return StatusUnusable
	case s.ErrorRate >= 0.5:
		return StatusDegraded
	}
	return StatusHealthy
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = make(map[string]*sourceWindow)
	t.denied = nil
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	prune := func(times []time.Time) []time.Time {
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			return append(times[:0], times[i:]...)
		}
		return times
	}
	for _, w := range t.sources {
		for o, times := range w.times {
			w.times[o] = prune(times)
		}
	}
	t.denied = prune(t.denied)
}
