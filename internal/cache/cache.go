// Package cache persists resolved website metadata with a TTL on top of a
// key/value store.
package cache

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

// KeyPrefix namespaces cache entries inside the store.
const KeyPrefix = "website_data_"

// Defaults applied when Config fields are zero.
const (
	DefaultTTL              = 7 * 24 * time.Hour
	DefaultFallbackTTL      = time.Hour
	DefaultSweepScanLimit   = 100
	DefaultSweepDeleteLimit = 50
)

// Config tunes expiry and sweeping.
type Config struct {
	TTL              time.Duration
	FallbackTTL      time.Duration
	SweepScanLimit   int
	SweepDeleteLimit int
}

// Entry is the persisted form of a cached value.
type Entry struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	// Timestamp is the write time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// TTL is the entry lifetime in milliseconds.
	TTL int64 `json:"ttl"`
	// Fallback marks synthesized placeholder entries.
	Fallback bool `json:"fallback,omitempty"`
}

// Data returns the metadata carried by the entry.
func (e Entry) Data() metadata.WebsiteData {
	return metadata.WebsiteData{Title: e.Title, Description: e.Description, Icon: e.Icon}
}

// Expired reports whether more than TTL has passed since the entry was written.
func (e Entry) Expired(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp > e.TTL
}

// SweepStats summarizes one ClearExpired pass.
type SweepStats struct {
	Checked   int
	Expired   int
	Removed   int
	Remaining int
}

// Cache reads and writes Entry values. Each read-check-delete and each write
// runs under a mutex so concurrent resolutions observe consistent entries.
type Cache struct {
	mu     sync.Mutex
	store  store.Store
	clock  metadata.Clock
	logger *zap.Logger
	cfg    Config

	sweepOnce sync.Once
	sweepDone chan struct{}
}

// New builds a Cache over s.
func New(s store.Store, clock metadata.Clock, cfg Config, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = DefaultFallbackTTL
	}
	if cfg.SweepScanLimit <= 0 {
		cfg.SweepScanLimit = DefaultSweepScanLimit
	}
	if cfg.SweepDeleteLimit <= 0 {
		cfg.SweepDeleteLimit = DefaultSweepDeleteLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:     s,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		sweepDone: make(chan struct{}),
	}
}

// Key returns the store key for rawURL.
func Key(rawURL string) string {
	return KeyPrefix + rawURL
}

// Get returns a live, valid entry for rawURL. Expired, undecodable, and invalid
// entries are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, rawURL string) (Entry, bool) {
	key := Key(rawURL)
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("cache read failed", zap.String("url", rawURL), zap.Error(err))
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Debug("dropping undecodable cache entry", zap.String("url", rawURL), zap.Error(err))
		c.deleteLocked(ctx, key)
		return Entry{}, false
	}
	if entry.Expired(c.clock.Now()) {
		c.logger.Debug("cache entry expired", zap.String("url", rawURL))
		c.deleteLocked(ctx, key)
		return Entry{}, false
	}
	if !entry.Fallback && !IsValid(entry.Data()) {
		c.logger.Debug("dropping invalid cache entry", zap.String("url", rawURL))
		c.deleteLocked(ctx, key)
		return Entry{}, false
	}
	return entry, true
}

// Set caches data for rawURL with the default TTL.
func (c *Cache) Set(ctx context.Context, rawURL string, data metadata.WebsiteData) {
	c.SetWithTTL(ctx, rawURL, data, c.cfg.TTL)
}

// SetWithTTL caches data for rawURL with an explicit TTL. Invalid data is not
// written.
func (c *Cache) SetWithTTL(ctx context.Context, rawURL string, data metadata.WebsiteData, ttl time.Duration) {
	if !IsValid(data) {
		c.logger.Debug("skipping cache write for invalid data", zap.String("url", rawURL))
		return
	}
	c.write(ctx, rawURL, data, ttl, false)
}

// SetFallback caches a synthesized placeholder for rawURL with the fallback
// TTL. The validity gate does not apply.
func (c *Cache) SetFallback(ctx context.Context, rawURL string, data metadata.WebsiteData) {
	c.write(ctx, rawURL, data, c.cfg.FallbackTTL, true)
}

// Delete removes any cached entry for rawURL.
func (c *Cache) Delete(ctx context.Context, rawURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(ctx, Key(rawURL))
}

func (c *Cache) write(ctx context.Context, rawURL string, data metadata.WebsiteData, ttl time.Duration, fallback bool) {
	entry := Entry{
		Title:       data.Title,
		Description: data.Description,
		Icon:        data.Icon,
		Timestamp:   c.clock.Now().UnixMilli(),
		TTL:         ttl.Milliseconds(),
		Fallback:    fallback,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("encode cache entry", zap.String("url", rawURL), zap.Error(err))
		return
	}

	c.mu.Lock()
	err = c.store.Set(ctx, Key(rawURL), payload)
	c.mu.Unlock()
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrQuotaExceeded) {
		c.logger.Warn("cache store full, sweeping expired entries", zap.String("url", rawURL))
		c.ClearExpired(ctx)
		return
	}
	c.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(err))
}

func (c *Cache) deleteLocked(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// ClearExpired inspects at most SweepScanLimit entries and removes at most
// SweepDeleteLimit of those that are expired or undecodable.
func (c *Cache) ClearExpired(ctx context.Context) SweepStats {
	var stats SweepStats
	keys, err := c.store.Keys(ctx, KeyPrefix, c.cfg.SweepScanLimit)
	if err != nil {
		c.logger.Warn("cache sweep listing failed", zap.Error(err))
		return stats
	}
	now := c.clock.Now()
	for _, key := range keys {
		stats.Checked++
		allowDelete := stats.Removed < c.cfg.SweepDeleteLimit
		if c.sweepKey(ctx, key, now, allowDelete) {
			stats.Expired++
			if allowDelete {
				stats.Removed++
			}
		}
	}
	stats.Remaining = stats.Expired - stats.Removed
	if stats.Expired > 0 {
		c.logger.Info("cache sweep finished",
			zap.Int("checked", stats.Checked),
			zap.Int("removed", stats.Removed),
			zap.Int("remaining", stats.Remaining),
		)
	}
	return stats
}

// sweepKey reports whether key is stale and deletes it when allowed.
func (c *Cache) sweepKey(ctx context.Context, key string, now time.Time, allowDelete bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return false
	}
	var entry Entry
	stale := json.Unmarshal(raw, &entry) != nil || entry.Expired(now)
	if stale && allowDelete {
		c.deleteLocked(ctx, key)
	}
	return stale
}

// EnsureSwept starts one background ClearExpired per Cache. Later calls are
// no-ops.
func (c *Cache) EnsureSwept(ctx context.Context) {
	c.sweepOnce.Do(func() {
		sweepCtx := context.WithoutCancel(ctx)
		go func() {
			defer close(c.sweepDone)
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("cache sweep panicked", zap.Any("panic", r))
				}
			}()
			c.ClearExpired(sweepCtx)
		}()
	})
}

// SweepDone is closed once the background sweep started by EnsureSwept ends.
func (c *Cache) SweepDone() <-chan struct{} {
	return c.sweepDone
}
