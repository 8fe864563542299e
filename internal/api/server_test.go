package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/config"
	"github.com/JakeFAU/linkmeta/internal/metadata"
)

func TestServer_GetMetadata_Succeeds(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{data: metadata.WebsiteData{Title: "Example", Description: "An example"}}
	server := newTestServer(res, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"title":"Example","description":"An example"}`, rec.Body.String())
	require.Equal(t, "provider", rec.Header().Get("X-Resolution-Source"))
	require.Equal(t, "res-1", rec.Header().Get("X-Resolution-ID"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, []string{"https://example.com"}, res.urls())
}

func TestServer_GetMetadata_EmptyIsStillOK(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeResolver{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{}`, rec.Body.String())
}

func TestServer_GetMetadata_InvalidURL(t *testing.T) {
	t.Parallel()

	res := &fakeResolver{}
	server := newTestServer(res, nil)

	for _, target := range []string{"/v1/metadata", "/v1/metadata?url=example.com", "/v1/metadata?url=ftp://x.org"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	require.Empty(t, res.urls())
}

func TestServer_GetMetadata_RefreshInvalidatesFirst(t *testing.T) {
	t.Parallel()

	inv := &fakeInvalidator{}
	server := newTestServer(&fakeResolver{}, func(d *Dependencies) { d.Cache = inv })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com&refresh=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"https://example.com"}, inv.deleted)
}

func TestServer_DeleteMetadata(t *testing.T) {
	t.Parallel()

	inv := &fakeInvalidator{}
	server := newTestServer(&fakeResolver{}, func(d *Dependencies) { d.Cache = inv })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/metadata?url=https://example.com/page", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"https://example.com/page"}, inv.deleted)
}

func TestServer_DeleteMetadata_NoCache(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeResolver{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/metadata?url=https://example.com", nil))

	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_DebugMetadata(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	hist := &fakeHistory{res: map[string]metadata.Resolution{
		"https://example.com": {
			URL:    "https://example.com",
			Source: metadata.SourcePlaceholder,
			Attempts: []metadata.ProviderResult{
				{Provider: "jxcxin", Error: "boom"},
				{Provider: "microlink", Skipped: true},
			},
		},
	}}
	brk := &fakeBreaker{until: now.Add(5 * time.Minute)}
	server := newTestServer(&fakeResolver{}, func(d *Dependencies) {
		d.History = hist
		d.Breaker = brk
		d.Clock = metadata.ClockFunc(func() time.Time { return now })
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata/debug?url=https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view debugView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.Resolution)
	require.Len(t, view.Resolution.Attempts, 2)
	require.True(t, view.Resolution.Attempts[1].Skipped)
	require.NotNil(t, view.Breaker)
	require.Equal(t, "microlink", view.Breaker.Provider)
	require.False(t, view.Breaker.Available)
	require.True(t, brk.until.Equal(*view.Breaker.BlockedUntil))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata/debug?url=https://other.com", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_History(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{res: map[string]metadata.Resolution{
		"https://a.com": {URL: "https://a.com", Attempts: []metadata.ProviderResult{{Provider: "ahfi", Success: true}}},
	}}
	server := newTestServer(&fakeResolver{}, func(d *Dependencies) { d.History = hist })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap map[string][]metadata.ProviderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Len(t, snap["https://a.com"], 1)
}

func TestServer_HealthAndReady(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeResolver{}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	notReady := NewServer(Dependencies{}, testConfig(), zap.NewNop())
	rec := httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeResolver{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_APIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(Dependencies{Resolver: &fakeResolver{}}, cfg, zap.NewNop())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RateLimited(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.RateLimitRPS = 0.01
	cfg.Server.RateLimitBurst = 1
	server := NewServer(Dependencies{Resolver: &fakeResolver{}}, cfg, zap.NewNop())

	codes := make([]int, 0, 2)
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestIDMiddleware_PropagatesHeader(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestResponseWriter_FlushAndHijack(t *testing.T) {
	t.Parallel()

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	rw.Flush()
	require.True(t, rec.Flushed)

	conn, _, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, rec.CloseClient())

	plain := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err = plain.Hijack()
	require.Error(t, err)
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second},
	}
}

func newTestServer(res *fakeResolver, mutate func(*Dependencies)) *Server {
	deps := Dependencies{Resolver: res}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer(deps, testConfig(), zap.NewNop())
}

type fakeResolver struct {
	mu   sync.Mutex
	data metadata.WebsiteData
	seen []string
}

func (f *fakeResolver) ResolveDetailed(_ context.Context, rawURL string) metadata.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, rawURL)
	return metadata.Resolution{ID: "res-1", URL: rawURL, Data: f.data, Source: metadata.SourceProvider}
}

func (f *fakeResolver) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeInvalidator struct {
	deleted []string
}

func (f *fakeInvalidator) Delete(_ context.Context, rawURL string) {
	f.deleted = append(f.deleted, rawURL)
}

type fakeHistory struct {
	res map[string]metadata.Resolution
}

func (f *fakeHistory) Last(rawURL string) (metadata.Resolution, bool) {
	r, ok := f.res[rawURL]
	return r, ok
}

func (f *fakeHistory) Snapshot() map[string][]metadata.ProviderResult {
	out := make(map[string][]metadata.ProviderResult, len(f.res))
	for u, r := range f.res {
		out[u] = r.Attempts
	}
	return out
}

type fakeBreaker struct {
	until time.Time
}

func (f *fakeBreaker) Provider() string { return "microlink" }

func (f *fakeBreaker) BlockedUntil(context.Context) time.Time { return f.until }

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
