package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/config"
	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/metrics"
	"github.com/JakeFAU/linkmeta/internal/policy/ratelimit"
)

// MetadataResolver resolves a URL and reports how the value was obtained.
type MetadataResolver interface {
	ResolveDetailed(ctx context.Context, rawURL string) metadata.Resolution
}

// Invalidator drops cached metadata for a URL.
type Invalidator interface {
	Delete(ctx context.Context, rawURL string)
}

// HistoryReader exposes recent resolutions.
type HistoryReader interface {
	Last(rawURL string) (metadata.Resolution, bool)
	Snapshot() map[string][]metadata.ProviderResult
}

// BreakerStatus reports the guarded provider's circuit state.
type BreakerStatus interface {
	Provider() string
	BlockedUntil(ctx context.Context) time.Time
}

// Dependencies groups the collaborators of Server. Cache, History, and
// Breaker are optional.
type Dependencies struct {
	Resolver MetadataResolver
	Cache    Invalidator
	History  HistoryReader
	Breaker  BreakerStatus
	Clock    metadata.Clock
}

// Server wires HTTP handlers to the resolver.
type Server struct {
	router chi.Router
	deps   Dependencies
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = metadata.ClockFunc(time.Now)
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Server.RateLimitRPS, Burst: cfg.Server.RateLimitBurst})

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(limiter.Middleware)
		r.Route("/metadata", func(r chi.Router) {
			r.Get("/", s.getMetadata)
			r.Delete("/", s.deleteMetadata)
			r.Get("/debug", s.debugMetadata)
			r.Get("/history", s.history)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolver not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getMetadata(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := urlParam(w, r)
	if !ok {
		return
	}
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh && s.deps.Cache != nil {
		s.deps.Cache.Delete(r.Context(), rawURL)
	}
	res := s.deps.Resolver.ResolveDetailed(r.Context(), rawURL)
	if err := r.Context().Err(); err != nil {
		writeError(w, http.StatusRequestTimeout, "request canceled")
		return
	}
	w.Header().Set("X-Resolution-Source", string(res.Source))
	if res.ID != "" {
		w.Header().Set("X-Resolution-ID", res.ID)
	}
	writeJSON(w, http.StatusOK, res.Data)
}

func (s *Server) deleteMetadata(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := urlParam(w, r)
	if !ok {
		return
	}
	if s.deps.Cache == nil {
		writeError(w, http.StatusNotImplemented, "cache invalidation not available")
		return
	}
	s.deps.Cache.Delete(r.Context(), rawURL)
	w.WriteHeader(http.StatusNoContent)
}

type breakerView struct {
	Provider     string     `json:"provider"`
	Available    bool       `json:"available"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

type debugView struct {
	URL        string               `json:"url"`
	Resolution *metadata.Resolution `json:"last_resolution,omitempty"`
	Breaker    *breakerView         `json:"breaker,omitempty"`
}

func (s *Server) debugMetadata(w http.ResponseWriter, r *http.Request) {
	rawURL, ok := urlParam(w, r)
	if !ok {
		return
	}
	view := debugView{URL: rawURL}
	if s.deps.History != nil {
		if res, found := s.deps.History.Last(rawURL); found {
			view.Resolution = &res
		}
	}
	if s.deps.Breaker != nil {
		b := &breakerView{Provider: s.deps.Breaker.Provider(), Available: true}
		if until := s.deps.Breaker.BlockedUntil(r.Context()); !until.IsZero() && s.deps.Clock.Now().Before(until) {
			b.Available = false
			b.BlockedUntil = &until
		}
		view.Breaker = b
	}
	if view.Resolution == nil {
		writeJSON(w, http.StatusNotFound, view)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, map[string][]metadata.ProviderResult{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.Snapshot())
}

func urlParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	rawURL := r.URL.Query().Get("url")
	if err := metadata.ValidateURL(rawURL); err != nil {
		writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return "", false
	}
	return rawURL, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored in ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
