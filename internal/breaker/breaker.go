// Package breaker guards the rate-limited metadata provider with a persisted
// cooldown and a serialized request queue.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmeta/internal/metadata"
	"github.com/JakeFAU/linkmeta/internal/store"
)

// Defaults applied when Config fields are zero.
const (
	DefaultKey      = "microlink_blocked_until"
	DefaultCooldown = 10 * time.Minute
)

// ErrBreakerOpen is returned for calls skipped while the provider is blocked.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Config names the guarded provider and the cooldown applied on trip.
type Config struct {
	Provider string
	Key      string
	Cooldown time.Duration
}

type state struct {
	BlockedUntil int64 `json:"blockedUntil"`
}

// Available reports whether a provider blocked until blockedUntil may be
// called at now.
func Available(now, blockedUntil time.Time) bool {
	return !now.Before(blockedUntil)
}

// TripFunc is notified each time the breaker blocks its provider.
type TripFunc func(provider, reason string)

// Breaker keeps a single blocked-until timestamp in memory and persists it to
// the store so it survives restarts. A failed store write never reopens the
// provider. There is no half-open state; the provider becomes available again
// once the cooldown elapses.
type Breaker struct {
	mu     sync.Mutex
	until  time.Time
	store  store.Store
	clock  metadata.Clock
	cfg    Config
	logger *zap.Logger
	onTrip TripFunc
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithTripHook registers fn to run after every Block.
func WithTripHook(fn TripFunc) Option {
	return func(b *Breaker) {
		b.onTrip = fn
	}
}

// New creates a Breaker persisting its state in s.
func New(s store.Store, clock metadata.Clock, cfg Config, logger *zap.Logger, opts ...Option) *Breaker {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{store: s, clock: clock, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Provider returns the name of the guarded provider.
func (b *Breaker) Provider() string {
	return b.cfg.Provider
}

// IsAvailable reports whether the provider may be called now. Expired state
// is removed from the store.
func (b *Breaker) IsAvailable(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, persisted := b.deadlineLocked(ctx)
	if until.IsZero() {
		return true
	}
	if !Available(b.clock.Now(), until) {
		return false
	}
	b.until = time.Time{}
	if persisted {
		if err := b.store.Delete(ctx, b.cfg.Key); err != nil {
			b.logger.Warn("clear breaker state failed", zap.Error(err))
		}
	}
	b.logger.Debug("breaker cooldown elapsed", zap.String("provider", b.cfg.Provider))
	return true
}

// BlockedUntil returns the block deadline, or the zero time when the provider
// is not blocked.
func (b *Breaker) BlockedUntil(ctx context.Context) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, _ := b.deadlineLocked(ctx)
	return until
}

// Block marks the provider unavailable for the cooldown period. The block
// holds in memory even when persisting it fails.
func (b *Breaker) Block(ctx context.Context, reason string) {
	b.mu.Lock()
	until := b.clock.Now().Add(b.cfg.Cooldown)
	if until.After(b.until) {
		b.until = until
	}
	payload, err := json.Marshal(state{BlockedUntil: until.UnixMilli()})
	if err == nil {
		err = b.store.Set(ctx, b.cfg.Key, payload)
	}
	b.mu.Unlock()
	if err != nil {
		b.logger.Error("persist breaker state failed", zap.String("provider", b.cfg.Provider), zap.Error(err))
	}
	b.logger.Warn("provider blocked",
		zap.String("provider", b.cfg.Provider),
		zap.String("reason", reason),
		zap.Time("blocked_until", until),
	)
	if b.onTrip != nil {
		b.onTrip(b.cfg.Provider, reason)
	}
}

// deadlineLocked returns the later of the in-memory and persisted deadlines
// and whether a persisted one exists.
func (b *Breaker) deadlineLocked(ctx context.Context) (time.Time, bool) {
	until := b.until
	stored, ok := b.readLocked(ctx)
	if ok && stored.After(until) {
		until = stored
	}
	return until, ok
}

func (b *Breaker) readLocked(ctx context.Context) (time.Time, bool) {
	raw, err := b.store.Get(ctx, b.cfg.Key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn("read breaker state failed", zap.Error(err))
		}
		return time.Time{}, false
	}
	var st state
	if err := json.Unmarshal(raw, &st); err != nil || st.BlockedUntil <= 0 {
		if delErr := b.store.Delete(ctx, b.cfg.Key); delErr != nil {
			b.logger.Warn("clear breaker state failed", zap.Error(delErr))
		}
		return time.Time{}, false
	}
	return time.UnixMilli(st.BlockedUntil), true
}
