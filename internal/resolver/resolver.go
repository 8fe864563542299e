// Package resolver turns a URL into display metadata by consulting the cache
// and then an ordered chain of providers, synthesizing a fallback when every
// provider fails.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/breaker"
	"github.com/JakeFAU/linkmeta/internal/cache"
	"github.com/JakeFAU/linkmeta/internal/clock/system"
	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/provider"
)

// placeholderPattern matches the synthesized "visit <domain> website" sentence.
var placeholderPattern = regexp.MustCompile(`^visit \S+ website$`)

// Placeholder returns the synthesized description for rawURL.
func Placeholder(rawURL string) metadata.WebsiteData {
	domain := metadata.Hostname(rawURL)
	if domain == "" {
		domain = strings.TrimSpace(rawURL)
	}
	return metadata.WebsiteData{Description: fmt.Sprintf("visit %s website", domain)}
}

// IsPlaceholder reports whether data looks like a synthesized placeholder.
func IsPlaceholder(data metadata.WebsiteData) bool {
	return strings.TrimSpace(data.Title) == "" && placeholderPattern.MatchString(strings.TrimSpace(data.Description))
}

// queue runs calls to the guarded provider.
type queue interface {
	Do(ctx context.Context, task breaker.Task) (metadata.WebsiteData, error)
}

// Resolver implements metadata.Resolver.
type Resolver struct {
	cache     *cache.Cache
	providers map[string]provider.Provider
	locale    Locale
	domestic  []string
	intl      []string
	guarded   string
	queue     queue
	observer  Observer
	ids       metadata.IDGenerator
	clock     metadata.Clock
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocale overrides the domestic domain list.
func WithLocale(l Locale) Option {
	return func(r *Resolver) {
		r.locale = l
	}
}

// WithOrders overrides the provider orders. Empty slices keep the defaults.
func WithOrders(domestic, international []string) Option {
	return func(r *Resolver) {
		if len(domestic) > 0 {
			r.domestic = append([]string(nil), domestic...)
		}
		if len(international) > 0 {
			r.intl = append([]string(nil), international...)
		}
	}
}

// WithGuard routes every call to the named provider through q.
func WithGuard(name string, q queue) Option {
	return func(r *Resolver) {
		r.guarded = name
		r.queue = q
	}
}

// WithObserver registers diagnostics observers.
func WithObserver(o Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// WithIDGenerator sets the resolution ID source.
func WithIDGenerator(g metadata.IDGenerator) Option {
	return func(r *Resolver) {
		r.ids = g
	}
}

// WithClock sets the clock used for attempt timestamps.
func WithClock(c metadata.Clock) Option {
	return func(r *Resolver) {
		r.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver over c and the given providers.
func New(c *cache.Cache, providers []provider.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		cache:     c,
		providers: make(map[string]provider.Provider, len(providers)),
		locale:    NewLocale(DefaultDomesticDomains),
		domestic:  DefaultDomesticOrder,
		intl:      DefaultInternationalOrder,
		observer:  Observers(nil),
		clock:     system.New(),
		logger:    zap.NewNop(),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Order returns the provider order used for rawURL and whether the URL is
// domestic.
func (r *Resolver) Order(rawURL string) ([]string, bool) {
	if r.locale.IsDomestic(rawURL) {
		return r.domestic, true
	}
	return r.intl, false
}

// Resolve implements metadata.Resolver.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) metadata.WebsiteData {
	return r.ResolveDetailed(ctx, rawURL).Data
}

// ResolveDetailed resolves rawURL and reports where the value came from and
// every provider attempt made. It never fails; a canceled ctx stops the chain
// and yields empty data without caching anything.
func (r *Resolver) ResolveDetailed(ctx context.Context, rawURL string) metadata.Resolution {
	res := metadata.Resolution{
		ID:      r.newID(),
		URL:     rawURL,
		Started: r.clock.Now(),
	}
	defer func() {
		res.Finished = r.clock.Now()
		r.observer.ObserveResolution(ctx, res)
	}()

	r.cache.EnsureSwept(ctx)

	if entry, ok := r.cache.Get(ctx, rawURL); ok {
		data := entry.Data()
		if entry.Fallback || !IsPlaceholder(data) {
			res.Data, res.Source = data, metadata.SourceCache
			return res
		}
		r.logger.Debug("purging unmarked placeholder entry", zap.String("url", rawURL))
		r.cache.Delete(ctx, rawURL)
	}

	order, domestic := r.Order(rawURL)
	res.Domestic = domestic

	var partials []metadata.WebsiteData
	for _, name := range order {
		if ctx.Err() != nil {
			break
		}
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		data, attempt := r.attempt(ctx, p, rawURL)
		res.Attempts = append(res.Attempts, attempt)
		r.observer.ObserveAttempt(ctx, rawURL, attempt)

		if acceptable(data) {
			r.cache.Set(ctx, rawURL, data)
			res.Data, res.Source, res.Provider = data, metadata.SourceProvider, name
			return res
		}
		if !data.IsEmpty() {
			partials = append(partials, data)
		}
	}

	if ctx.Err() != nil {
		r.logger.Debug("resolution canceled", zap.String("url", rawURL), zap.Error(ctx.Err()))
		return res
	}

	if best, ok := bestPartial(partials); ok {
		res.Data, res.Source = best, metadata.SourceTitleFallback
		r.cache.Set(ctx, rawURL, best)
		return res
	}

	res.Data, res.Source = Placeholder(rawURL), metadata.SourcePlaceholder
	r.cache.SetFallback(ctx, rawURL, res.Data)
	return res
}

func (r *Resolver) attempt(ctx context.Context, p provider.Provider, rawURL string) (data metadata.WebsiteData, result metadata.ProviderResult) {
	name := p.Name()
	result = metadata.ProviderResult{Provider: name}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider panicked", zap.String("provider", name), zap.Any("panic", rec))
			data = metadata.WebsiteData{}
			result.Success, result.HasData = false, false
			result.Error = fmt.Sprintf("panic: %v", rec)
		}
		result.Timestamp = r.clock.Now()
	}()

	var err error
	if name == r.guarded && r.queue != nil {
		data, err = r.queue.Do(ctx, func(ctx context.Context) (metadata.WebsiteData, error) {
			return p.Fetch(ctx, rawURL)
		})
		result.Skipped = errors.Is(err, breaker.ErrBreakerOpen) || errors.Is(err, breaker.ErrQueueFull)
	} else {
		data, err = p.Fetch(ctx, rawURL)
	}
	if err != nil {
		data = metadata.WebsiteData{}
		result.Error = err.Error()
		return data, result
	}
	result.Success = true
	result.HasData = !data.IsEmpty()
	return data, result
}

// acceptable results stop the chain: valid and carrying a description.
func acceptable(data metadata.WebsiteData) bool {
	return cache.IsValid(data) && strings.TrimSpace(data.Description) != ""
}

// bestPartial picks the longest usable title among partial results and uses
// it as both title and description.
func bestPartial(partials []metadata.WebsiteData) (metadata.WebsiteData, bool) {
	var best metadata.WebsiteData
	for _, p := range partials {
		title := strings.TrimSpace(p.Title)
		if title == "" || cache.IsErrorTitle(title) {
			continue
		}
		if utf8.RuneCountInString(title) > utf8.RuneCountInString(best.Title) {
			best = metadata.WebsiteData{Title: title, Description: title, Icon: p.Icon}
		}
	}
	return best, best.Title != ""
}

func (r *Resolver) newID() string {
	if r.ids == nil {
		return ""
	}
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("generate resolution id failed", zap.Error(err))
		return ""
	}
	return id
}
