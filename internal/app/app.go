// Package app builds the long-lived services of linkmeta and owns their
// lifecycle. It is the dependency injection container shared by the CLI
// commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/api"
	"github.com/JakeFAU/linkmeta/internal/breaker"
	"github.com/JakeFAU/linkmeta/internal/cache"
	"github.com/JakeFAU/linkmeta/internal/clock/system"
	"github.com/JakeFAU/linkmeta/internal/config"
	"github.com/JakeFAU/linkmeta/internal/id/uuid"
	"github.com/JakeFAU/linkmeta/internal/logging"
	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/metrics"
	"github.com/JakeFAU/linkmeta/internal/provider"
	"github.com/JakeFAU/linkmeta/internal/resolver"
	"github.com/JakeFAU/linkmeta/internal/sites"
	"github.com/JakeFAU/linkmeta/internal/store"
	dynamostore "github.com/JakeFAU/linkmeta/internal/store/dynamodb"
	localstore "github.com/JakeFAU/linkmeta/internal/store/local"
	memorystore "github.com/JakeFAU/linkmeta/internal/store/memory"
	pgstore "github.com/JakeFAU/linkmeta/internal/store/postgres"
	redisstore "github.com/JakeFAU/linkmeta/internal/store/redis"
)

// App contains the application's dependencies.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	clock    metadata.Clock
	client   provider.HTTPDoer
	store    store.Store
	cache    *cache.Cache
	breaker  *breaker.Breaker
	queue    *breaker.Queue
	history  *resolver.History
	resolver *resolver.Resolver

	ownsLogger bool
	closers    []func() error
}

// Option customizes Build.
type Option func(*App)

// WithLogger injects a logger instead of building one from config.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithStore injects a store instead of opening the configured backend.
func WithStore(s store.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithClock overrides the wall clock.
func WithClock(c metadata.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// WithHTTPClient sets the client used by every provider adapter.
func WithHTTPClient(c provider.HTTPDoer) Option {
	return func(a *App) {
		a.client = c
	}
}

// Build wires the application from cfg.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, clock: system.New()}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Enabled: cfg.Logging.Enabled})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		a.logger = logger
		a.ownsLogger = true
	}
	metrics.Init()

	if a.store == nil {
		s, err := a.openStore(ctx)
		if err != nil {
			a.closeAll()
			return nil, err
		}
		a.store = s
	}

	a.cache = cache.New(a.store, a.clock, cache.Config{
		TTL:              cfg.Cache.TTL,
		FallbackTTL:      cfg.Cache.FallbackTTL,
		SweepScanLimit:   cfg.Cache.SweepScanLimit,
		SweepDeleteLimit: cfg.Cache.SweepDeleteLimit,
	}, a.logger.Named("cache"))

	a.breaker = breaker.New(a.store, a.clock, breaker.Config{
		Provider: cfg.Breaker.Provider,
		Key:      cfg.Breaker.Key,
		Cooldown: cfg.Breaker.Cooldown,
	}, a.logger.Named("breaker"), breaker.WithTripHook(func(name, _ string) {
		metrics.ObserveBreakerTrip(name)
	}))

	a.queue = breaker.NewQueue(a.breaker, breaker.QueueConfig{
		MinInterval: cfg.Breaker.MinInterval,
		Capacity:    cfg.Breaker.QueueCapacity,
	}, a.logger.Named("queue"), breaker.WithDepthHook(metrics.SetQueueDepth))

	providers, err := a.buildProviders()
	if err != nil {
		a.closeAll()
		return nil, err
	}

	ids := uuid.New()
	a.history = resolver.NewHistory(cfg.Resolver.HistorySize)
	a.resolver = resolver.New(a.cache, providers,
		resolver.WithLocale(resolver.NewLocale(cfg.Resolver.DomesticDomains)),
		resolver.WithOrders(cfg.Resolver.DomesticOrder, cfg.Resolver.InternationalOrder),
		resolver.WithGuard(cfg.Breaker.Provider, a.queue),
		resolver.WithObserver(resolver.Observers{
			resolver.NewLogObserver(a.logger.Named("resolver")),
			resolver.MetricsObserver{},
			a.history,
		}),
		resolver.WithIDGenerator(ids),
		resolver.WithClock(a.clock),
		resolver.WithLogger(a.logger.Named("resolver")),
	)

	a.logger.Info("application built",
		zap.String("store", cfg.Store.Backend),
		zap.String("guarded_provider", cfg.Breaker.Provider),
		zap.Int("providers", len(providers)),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	sc := a.cfg.Store
	switch sc.Backend {
	case config.BackendLocal:
		a.logger.Info("using local store backend", zap.String("dir", sc.LocalDir))
		s, err := localstore.New(localstore.Config{BaseDir: sc.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local store init failed: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		a.logger.Info("using redis store backend", zap.String("addr", sc.RedisAddr), zap.Int("db", sc.RedisDB))
		s, err := redisstore.New(ctx, redisstore.Config{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			MaxAge:   a.cfg.Cache.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis store init failed: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendPostgres:
		a.logger.Info("using postgres store backend", zap.String("table", sc.PostgresTable))
		if sc.Migrate {
			if err := pgstore.Migrate(ctx, sc.PostgresDSN); err != nil {
				return nil, fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		s, err := pgstore.New(ctx, pgstore.Config{DSN: sc.PostgresDSN, Table: sc.PostgresTable})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendDynamo:
		a.logger.Info("using dynamodb store backend",
			zap.String("table", sc.DynamoTable),
			zap.String("region", sc.DynamoRegion),
		)
		s, err := dynamostore.New(ctx, dynamostore.Config{
			Table:    sc.DynamoTable,
			Region:   sc.DynamoRegion,
			Endpoint: sc.DynamoURL,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb store init failed: %w", err)
		}
		return s, nil
	default:
		a.logger.Info("using in-memory store backend", zap.Int("max_entries", sc.MaxEntries))
		return memorystore.New(memorystore.WithMaxEntries(sc.MaxEntries)), nil
	}
}

func (a *App) buildProviders() ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(provider.Known))
	for _, name := range provider.Known {
		p, err := provider.New(name, provider.Options{
			Endpoint:  a.cfg.Providers.Endpoints[name],
			Timeout:   a.cfg.Providers.Timeout,
			UserAgent: a.cfg.Providers.UserAgent,
			Client:    a.client,
			Logger:    a.logger.Named("provider"),
		}, a.breaker)
		if err != nil {
			return nil, fmt.Errorf("provider %s init failed: %w", name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Resolver returns the metadata resolver.
func (a *App) Resolver() *resolver.Resolver { return a.resolver }

// Cache returns the metadata cache.
func (a *App) Cache() *cache.Cache { return a.cache }

// History returns the recent resolution history.
func (a *App) History() *resolver.History { return a.history }

// Breaker returns the guarded provider's circuit breaker.
func (a *App) Breaker() *breaker.Breaker { return a.breaker }

// Enricher returns a site directory enricher backed by the resolver.
func (a *App) Enricher() *sites.Enricher {
	return sites.NewEnricher(a.resolver, a.cfg.Sites.Concurrency, a.logger.Named("sites"))
}

// APIServer builds the HTTP surface.
func (a *App) APIServer() *api.Server {
	return api.NewServer(api.Dependencies{
		Resolver: a.resolver,
		Cache:    a.cache,
		History:  a.history,
		Breaker:  a.breaker,
		Clock:    a.clock,
	}, a.cfg, a.logger.Named("api"))
}

// Serve runs the HTTP server until ctx ends or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			stop()
		}
		close(errCh)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-errCh; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close releases backend connections and flushes the logger.
func (a *App) Close() error {
	err := a.closeAll()
	if a.logger != nil {
		a.logger.Info("shutdown complete")
		if a.ownsLogger {
			_ = a.logger.Sync()
		}
	}
	return err
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
		return err
	}
	return nil
}

// ResolveDetailed resolves rawURL through the cache and provider chain.
func (a *App) ResolveDetailed(ctx context.Context, rawURL string) metadata.Resolution {
	return a.resolver.ResolveDetailed(ctx, rawURL)
}

// Invalidate drops the cached entry for rawURL.
func (a *App) Invalidate(ctx context.Context, rawURL string) {
	a.cache.Delete(ctx, rawURL)
}

// Enrich fills missing site names and descriptions.
func (a *App) Enrich(ctx context.Context, categories []sites.Category) ([]sites.Section, error) {
	sections, err := a.Enricher().Enrich(ctx, categories)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	return sections, nil
}
