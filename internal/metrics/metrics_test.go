package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if providerAttemptsTotal == nil || cacheLookupsTotal == nil || resolutionsTotal == nil ||
		breakerTripsTotal == nil || queueDepth == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservers(t *testing.T) {
	Init()

	attempts := providerAttemptsTotal.WithLabelValues("microlink", "data")
	before := testutil.ToFloat64(attempts)
	ObserveProviderAttempt("microlink", "data")
	if got := testutil.ToFloat64(attempts) - before; got != 1 {
		t.Errorf("provider attempts delta = %f; want 1", got)
	}

	hits := cacheLookupsTotal.WithLabelValues("hit")
	misses := cacheLookupsTotal.WithLabelValues("miss")
	hitsBefore, missesBefore := testutil.ToFloat64(hits), testutil.ToFloat64(misses)
	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	ObserveCacheLookup(false)
	if got := testutil.ToFloat64(hits) - hitsBefore; got != 1 {
		t.Errorf("cache hits delta = %f; want 1", got)
	}
	if got := testutil.ToFloat64(misses) - missesBefore; got != 2 {
		t.Errorf("cache misses delta = %f; want 2", got)
	}

	resolved := resolutionsTotal.WithLabelValues("placeholder")
	resolvedBefore := testutil.ToFloat64(resolved)
	ObserveResolution("placeholder", 20*time.Millisecond)
	if got := testutil.ToFloat64(resolved) - resolvedBefore; got != 1 {
		t.Errorf("resolutions delta = %f; want 1", got)
	}

	trips := breakerTripsTotal.WithLabelValues("microlink")
	tripsBefore := testutil.ToFloat64(trips)
	ObserveBreakerTrip("microlink")
	if got := testutil.ToFloat64(trips) - tripsBefore; got != 1 {
		t.Errorf("breaker trips delta = %f; want 1", got)
	}

	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Errorf("queue depth = %f; want 7", got)
	}
	SetQueueDepth(0)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://bilibili.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
