package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/config"
	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/provider"
	"github.com/JakeFAU/linkmeta/internal/sites"
	memorystore "github.com/JakeFAU/linkmeta/internal/store/memory"
)

type upstream struct {
	server *httptest.Server
	calls  atomic.Int32
}

// newUpstream serves a jxcxin-style payload on /jxcxin and fails every other
// provider path.
func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		if r.URL.Path != "/jxcxin" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": map[string]string{"title": "Example Domain", "description": "Illustrative examples"},
		})
	}))
	t.Cleanup(u.server.Close)
	return u
}

func testConfig(t *testing.T, u *upstream) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendMemory
	cfg.Providers.Endpoints = map[string]string{}
	for _, name := range provider.Known {
		cfg.Providers.Endpoints[name] = u.server.URL + "/" + name
	}
	return cfg
}

func TestBuildResolvesThroughProviders(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	a, err := Build(context.Background(), testConfig(t, u), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	res := a.Resolver().ResolveDetailed(context.Background(), "https://example.com")
	require.Equal(t, metadata.SourceProvider, res.Source)
	require.Equal(t, provider.Jxcxin, res.Provider)
	require.Equal(t, "Illustrative examples", res.Data.Description)
	require.NotEmpty(t, res.ID)

	again := a.Resolver().Resolve(context.Background(), "https://example.com")
	require.Equal(t, res.Data, again)
	require.Equal(t, int32(1), u.calls.Load())

	last, ok := a.History().Last("https://example.com")
	require.True(t, ok)
	require.Equal(t, metadata.SourceCache, last.Source)
}

func TestBuildUsesInjectedStore(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	st := memorystore.New()
	a, err := Build(context.Background(), testConfig(t, u), WithLogger(zap.NewNop()), WithStore(st))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	a.Resolver().Resolve(context.Background(), "https://example.com")
	require.GreaterOrEqual(t, st.Len(), 1)
}

func TestBuildLocalBackend(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	cfg := testConfig(t, u)
	cfg.Store.Backend = config.BackendLocal
	cfg.Store.LocalDir = t.TempDir()

	a, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	a.Resolver().Resolve(context.Background(), "https://example.com")
	require.NoError(t, a.Close())

	reopened, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Close()) })

	entry, ok := reopened.Cache().Get(context.Background(), "https://example.com")
	require.True(t, ok)
	require.Equal(t, "Example Domain", entry.Title)
}

func TestAPIServerServesMetadata(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	a, err := Build(context.Background(), testConfig(t, u), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	rec := httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata?url=https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var data metadata.WebsiteData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Equal(t, "Example Domain", data.Title)

	rec = httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metadata/debug?url=https://example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"provider":"microlink"`)
}

func TestEnricherUsesResolver(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	a, err := Build(context.Background(), testConfig(t, u), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	categories, err := sites.Parse([]byte("- category: Docs\n  sites:\n    - url: https://example.com\n"))
	require.NoError(t, err)
	sections, err := a.Enricher().Enrich(context.Background(), categories)
	require.NoError(t, err)
	require.Equal(t, "Example Domain", sections[0].Cards[0].Name)
	require.Equal(t, "Illustrative examples", sections[0].Cards[0].Description)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	cfg := testConfig(t, u)
	cfg.Server.Port = 0
	a, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Serve(ctx))
}
