package service

import (
	"github.com/kjstillabower/weather-engine/internal/models"
)

// SourceInfo describes a configured source for status endpoints.
type SourceInfo struct {
	ID         string   `json:"id"`
	Priority   int      `json:"priority"`
	Kinds      []string `json:"kinds"`
	Credential string   `json:"credential,omitempty"`
	Configured bool     `json:"configured"`
	Breaker    string   `json:"breaker"`
}

// Sources lists every source in merge priority order.
func (e *Engine) Sources() []SourceInfo {
	out := make([]SourceInfo, 0, len(e.sources))
	for _, src := range e.sources {
		info := SourceInfo{
			ID:         src.ID(),
			Priority:   models.PriorityRank(src.ID()) + 1,
			Credential: src.Credential(),
			Configured: true,
			Breaker:    "closed",
		}
		for _, k := range []models.Kind{models.KindCurrent, models.KindDaily, models.KindHourly} {
			if src.Supports(k) {
				info.Kinds = append(info.Kinds, string(k))
			}
		}
		if info.Credential != "" {
			key := ""
			if e.creds != nil {
				key, _ = e.creds.GetKey(info.Credential)
			}
			info.Configured = key != ""
		}
		if cb, ok := e.breakers[src.ID()]; ok {
			info.Breaker = cb.State().String()
		}
		out = append(out, info)
	}
	return out
}

// HasHistoryProvider reports whether a batch daily provider is configured.
func (e *Engine) HasHistoryProvider() bool { return e.history != nil }
