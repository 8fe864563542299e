package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
)

type fakeTripper struct {
	mu      sync.Mutex
	reasons []string
}

func (f *fakeTripper) Block(_ context.Context, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
}

func (f *fakeTripper) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reasons...)
}

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func opts(endpoint string) Options {
	return Options{Endpoint: endpoint, Logger: zap.NewNop()}
}

func TestGetJSONSendsHeadersAndQuery(t *testing.T) {
	t.Parallel()

	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"title":"T","description":"D"}}`))
	}))
	defer srv.Close()

	_, err := NewMicrolink(opts(srv.URL+"/"), nil).Fetch(context.Background(), "https://example.com/a?b=c")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "application/json", got.Header.Get("Accept"))
	require.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	require.Equal(t, "https://example.com/a?b=c", got.URL.Query().Get("url"))
	require.Equal(t, "title,description", got.URL.Query().Get("data"))
}

func TestAdaptersParseEnvelopes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		new  func(Options) Provider
		body string
		want metadata.WebsiteData
	}{
		{
			name: "microlink",
			new:  func(o Options) Provider { return NewMicrolink(o, nil) },
			body: `{"status":"success","data":{"title":"GitHub","description":"Where code lives"}}`,
			want: metadata.WebsiteData{Title: "GitHub", Description: "Where code lives"},
		},
		{
			name: "ahfi with icon",
			new:  func(o Options) Provider { return NewAhfi(o) },
			body: `{"code":200,"data":{"title":" Bilibili ","description":"videos","ico_url":"https://b.com/i.ico"}}`,
			want: metadata.WebsiteData{Title: "Bilibili", Description: "videos", Icon: "https://b.com/i.ico"},
		},
		{
			name: "xxapi",
			new:  func(o Options) Provider { return NewXxapi(o) },
			body: `{"code":200,"msg":"ok","data":{"title":"Zhihu","description":"Q&A"}}`,
			want: metadata.WebsiteData{Title: "Zhihu", Description: "Q&A"},
		},
		{
			name: "jxcxin",
			new:  func(o Options) Provider { return NewJxcxin(o) },
			body: `{"code":200,"data":{"title":"Weibo","description":""}}`,
			want: metadata.WebsiteData{Title: "Weibo"},
		},
		{
			name: "uapis bare",
			new:  func(o Options) Provider { return NewUapis(o) },
			body: `{"title":"Go","description":"The Go language"}`,
			want: metadata.WebsiteData{Title: "Go", Description: "The Go language"},
		},
		{
			name: "uapis code envelope",
			new:  func(o Options) Provider { return NewUapis(o) },
			body: `{"code":200,"data":{"title":"Go","description":"lang"}}`,
			want: metadata.WebsiteData{Title: "Go", Description: "lang"},
		},
		{
			name: "uapis success envelope",
			new:  func(o Options) Provider { return NewUapis(o) },
			body: `{"success":true,"data":{"title":"Go","description":"lang"}}`,
			want: metadata.WebsiteData{Title: "Go", Description: "lang"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := jsonServer(t, http.StatusOK, tc.body)
			got, err := tc.new(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAdaptersRejectFailureEnvelopes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		new  func(Options) Provider
		body string
	}{
		{"ahfi bad code", func(o Options) Provider { return NewAhfi(o) }, `{"code":500,"msg":"fail"}`},
		{"xxapi missing data", func(o Options) Provider { return NewXxapi(o) }, `{"code":200}`},
		{"jxcxin bad code", func(o Options) Provider { return NewJxcxin(o) }, `{"code":-1,"data":{"title":"x"}}`},
		{"uapis unknown", func(o Options) Provider { return NewUapis(o) }, `{"success":false,"data":{"title":"x"}}`},
		{"microlink fail", func(o Options) Provider { return NewMicrolink(o, nil) }, `{"status":"fail","code":"EINVALURL"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := jsonServer(t, http.StatusOK, tc.body)
			got, err := tc.new(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
			require.ErrorIs(t, err, ErrUnexpectedPayload)
			require.Equal(t, metadata.WebsiteData{}, got)
		})
	}
}

func TestAdapterErrorClasses(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		srv := jsonServer(t, http.StatusBadGateway, `{}`)
		_, err := NewAhfi(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, http.StatusBadGateway, statusErr.Code)
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer srv.Close()
		_, err := NewXxapi(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrNotJSON)
	})

	t.Run("decode", func(t *testing.T) {
		t.Parallel()
		srv := jsonServer(t, http.StatusOK, `{"code":`)
		_, err := NewJxcxin(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrDecode)
	})

	t.Run("429", func(t *testing.T) {
		t.Parallel()
		srv := jsonServer(t, http.StatusTooManyRequests, `{}`)
		_, err := NewUapis(opts(srv.URL)).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrRateLimited)
	})
}

func TestMicrolinkTripsBreaker(t *testing.T) {
	t.Parallel()

	t.Run("http 429", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := jsonServer(t, http.StatusTooManyRequests, `{}`)
		data, err := NewMicrolink(opts(srv.URL), tripper).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrRateLimited)
		require.Equal(t, metadata.WebsiteData{}, data)
		require.Equal(t, []string{"429 rate limit"}, tripper.calls())
	})

	t.Run("rate limit code", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := jsonServer(t, http.StatusOK, `{"status":"fail","code":"ERATE","message":"daily limit"}`)
		_, err := NewMicrolink(opts(srv.URL), tripper).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrRateLimited)
		require.Equal(t, []string{"rate-limit error (ERATE)"}, tripper.calls())
	})

	t.Run("network error", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := httptest.NewServer(http.NotFoundHandler())
		endpoint := srv.URL
		srv.Close()
		_, err := NewMicrolink(opts(endpoint), tripper).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrTransport)
		require.Equal(t, []string{"blocked or network error"}, tripper.calls())
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		o := opts(srv.URL)
		o.Timeout = 50 * time.Millisecond
		_, err := NewMicrolink(o, tripper).Fetch(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrTransport)
		require.Equal(t, []string{"blocked or network error"}, tripper.calls())
	})

	t.Run("other failures do not trip", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := jsonServer(t, http.StatusInternalServerError, `{}`)
		_, err := NewMicrolink(opts(srv.URL), tripper).Fetch(context.Background(), "https://example.com")
		require.Error(t, err)
		require.Empty(t, tripper.calls())
	})

	t.Run("caller cancellation does not trip", func(t *testing.T) {
		t.Parallel()
		tripper := &fakeTripper{}
		srv := jsonServer(t, http.StatusOK, `{}`)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewMicrolink(opts(srv.URL), tripper).Fetch(ctx, "https://example.com")
		require.True(t, errors.Is(err, ErrTransport))
		require.Empty(t, tripper.calls())
	})
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	for _, name := range Known {
		p, err := New(name, Options{}, nil)
		require.NoError(t, err)
		require.Equal(t, name, p.Name())
		require.True(t, IsKnown(name))
	}
	_, err := New("bogus", Options{}, nil)
	require.Error(t, err)
	require.False(t, IsKnown("bogus"))
}
