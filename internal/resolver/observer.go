package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/metrics"
)

// Observer receives diagnostics while URLs are resolved. Implementations must
// be safe for concurrent use and must not block.
type Observer interface {
	ObserveAttempt(ctx context.Context, rawURL string, result metadata.ProviderResult)
	ObserveResolution(ctx context.Context, res metadata.Resolution)
}

// Observers fans out to every member.
type Observers []Observer

// ObserveAttempt implements Observer.
func (o Observers) ObserveAttempt(ctx context.Context, rawURL string, result metadata.ProviderResult) {
	for _, obs := range o {
		obs.ObserveAttempt(ctx, rawURL, result)
	}
}

// ObserveResolution implements Observer.
func (o Observers) ObserveResolution(ctx context.Context, res metadata.Resolution) {
	for _, obs := range o {
		obs.ObserveResolution(ctx, res)
	}
}

// LogObserver writes structured debug logs.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver wires a zap logger to the Observer interface.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// ObserveAttempt implements Observer.
func (o *LogObserver) ObserveAttempt(_ context.Context, rawURL string, r metadata.ProviderResult) {
	o.logger.Debug("provider attempt",
		zap.String("url", rawURL),
		zap.String("provider", r.Provider),
		zap.Bool("success", r.Success),
		zap.Bool("has_data", r.HasData),
		zap.Bool("skipped", r.Skipped),
		zap.String("error", r.Error),
	)
}

// ObserveResolution implements Observer.
func (o *LogObserver) ObserveResolution(_ context.Context, res metadata.Resolution) {
	o.logger.Debug("metadata resolved",
		zap.String("id", res.ID),
		zap.String("url", res.URL),
		zap.String("source", string(res.Source)),
		zap.String("provider", res.Provider),
		zap.Bool("domestic", res.Domestic),
		zap.Int("attempts", len(res.Attempts)),
		zap.Duration("dur", res.Finished.Sub(res.Started)),
	)
}

// MetricsObserver records Prometheus counters. metrics.Init must have run.
type MetricsObserver struct{}

// ObserveAttempt implements Observer.
func (MetricsObserver) ObserveAttempt(_ context.Context, _ string, r metadata.ProviderResult) {
	metrics.ObserveProviderAttempt(r.Provider, attemptOutcome(r))
}

// ObserveResolution implements Observer.
func (MetricsObserver) ObserveResolution(_ context.Context, res metadata.Resolution) {
	metrics.ObserveCacheLookup(res.Source == metadata.SourceCache)
	metrics.ObserveResolution(string(res.Source), res.Finished.Sub(res.Started))
}

func attemptOutcome(r metadata.ProviderResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case !r.Success:
		return "error"
	case r.HasData:
		return "data"
	default:
		return "empty"
	}
}

const defaultHistorySize = 256

// History keeps the most recent resolution per URL for debugging.
type History struct {
	mu      sync.Mutex
	max     int
	order   []string
	entries map[string]metadata.Resolution
}

// NewHistory creates a History holding at most max URLs.
func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &History{max: max, entries: make(map[string]metadata.Resolution)}
}

// ObserveAttempt implements Observer; attempts are recorded with the resolution.
func (h *History) ObserveAttempt(context.Context, string, metadata.ProviderResult) {}

// ObserveResolution implements Observer.
func (h *History) ObserveResolution(_ context.Context, res metadata.Resolution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entries[res.URL]; !ok {
		h.order = append(h.order, res.URL)
		if len(h.order) > h.max {
			oldest := h.order[0]
			h.order = h.order[1:]
			delete(h.entries, oldest)
		}
	}
	h.entries[res.URL] = res
}

// Last returns the most recent resolution recorded for rawURL.
func (h *History) Last(rawURL string) (metadata.Resolution, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, ok := h.entries[rawURL]
	return res, ok
}

// Attempts returns the provider attempts of the last resolution of rawURL.
func (h *History) Attempts(rawURL string) []metadata.ProviderResult {
	res, ok := h.Last(rawURL)
	if !ok {
		return nil
	}
	return append([]metadata.ProviderResult(nil), res.Attempts...)
}

// Snapshot returns every recorded URL mapped to its attempts.
func (h *History) Snapshot() map[string][]metadata.ProviderResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]metadata.ProviderResult, len(h.entries))
	for u, res := range h.entries {
		out[u] = append([]metadata.ProviderResult(nil), res.Attempts...)
	}
	return out
}
