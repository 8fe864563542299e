// Package config loads and validates resolver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/linkmeta/internal/breaker"
	"github.com/JakeFAU/linkmeta/internal/cache"
	"github.com/JakeFAU/linkmeta/internal/provider"
	"github.com/JakeFAU/linkmeta/internal/resolver"
	"github.com/JakeFAU/linkmeta/internal/sites"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Sites     SitesConfig     `mapstructure:"sites"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	Enabled     bool `mapstructure:"enabled"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StoreConfig selects and configures the key/value backend.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	LocalDir      string `mapstructure:"local_dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	Migrate       bool   `mapstructure:"migrate"`
	DynamoTable   string `mapstructure:"dynamo_table"`
	DynamoRegion  string `mapstructure:"dynamo_region"`
	DynamoURL     string `mapstructure:"dynamo_endpoint"`
	MaxEntries    int    `mapstructure:"max_entries"`
}

// CacheConfig tunes entry lifetimes and sweeping.
type CacheConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	FallbackTTL      time.Duration `mapstructure:"fallback_ttl"`
	SweepScanLimit   int           `mapstructure:"sweep_scan_limit"`
	SweepDeleteLimit int           `mapstructure:"sweep_delete_limit"`
}

// BreakerConfig guards the rate-limited provider.
type BreakerConfig struct {
	Provider      string        `mapstructure:"provider"`
	Key           string        `mapstructure:"key"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
}

// ProvidersConfig configures the upstream metadata APIs.
type ProvidersConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Endpoints map[string]string `mapstructure:"endpoints"`
}

// ResolverConfig overrides locale detection and provider orders.
type ResolverConfig struct {
	DomesticDomains    []string `mapstructure:"domestic_domains"`
	DomesticOrder      []string `mapstructure:"domestic_order"`
	InternationalOrder []string `mapstructure:"international_order"`
	HistorySize        int      `mapstructure:"history_size"`
}

// SitesConfig points at the curated link directory.
type SitesConfig struct {
	File        string `mapstructure:"file"`
	Concurrency int    `mapstructure:"concurrency"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 5)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("store.backend", BackendLocal)
	v.SetDefault("store.local_dir", ".linkmeta")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.postgres_table", "linkmeta_kv")
	v.SetDefault("store.migrate", true)
	v.SetDefault("store.dynamo_table", "linkmeta_kv")
	v.SetDefault("store.dynamo_region", "us-east-1")
	v.SetDefault("store.max_entries", 0)
	v.SetDefault("cache.ttl", cache.DefaultTTL.String())
	v.SetDefault("cache.fallback_ttl", cache.DefaultFallbackTTL.String())
	v.SetDefault("cache.sweep_scan_limit", cache.DefaultSweepScanLimit)
	v.SetDefault("cache.sweep_delete_limit", cache.DefaultSweepDeleteLimit)
	v.SetDefault("breaker.provider", provider.Microlink)
	v.SetDefault("breaker.key", breaker.DefaultKey)
	v.SetDefault("breaker.cooldown", breaker.DefaultCooldown.String())
	v.SetDefault("breaker.min_interval", breaker.DefaultMinInterval.String())
	v.SetDefault("breaker.queue_capacity", breaker.DefaultQueueCapacity)
	v.SetDefault("providers.timeout", provider.DefaultTimeout.String())
	v.SetDefault("providers.user_agent", provider.DefaultUserAgent)
	v.SetDefault("resolver.domestic_domains", resolver.DefaultDomesticDomains)
	v.SetDefault("resolver.domestic_order", resolver.DefaultDomesticOrder)
	v.SetDefault("resolver.international_order", resolver.DefaultInternationalOrder)
	v.SetDefault("resolver.history_size", 256)
	v.SetDefault("sites.file", "sites.yaml")
	v.SetDefault("sites.concurrency", sites.DefaultConcurrency)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if c.Server.RequestTimeout <= 0 {
		return errors.New("server.request_timeout must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 || c.Cache.FallbackTTL <= 0 {
		return errors.New("cache.ttl and cache.fallback_ttl must be > 0")
	}
	if c.Cache.SweepScanLimit <= 0 || c.Cache.SweepDeleteLimit <= 0 {
		return errors.New("cache sweep limits must be > 0")
	}
	if !provider.IsKnown(c.Breaker.Provider) {
		return fmt.Errorf("breaker.provider %q is not a known provider", c.Breaker.Provider)
	}
	if c.Breaker.Key == "" {
		return errors.New("breaker.key must be set")
	}
	if c.Breaker.Cooldown <= 0 || c.Breaker.MinInterval <= 0 {
		return errors.New("breaker.cooldown and breaker.min_interval must be > 0")
	}
	if c.Breaker.QueueCapacity <= 0 {
		return errors.New("breaker.queue_capacity must be > 0")
	}
	if c.Providers.Timeout <= 0 {
		return errors.New("providers.timeout must be > 0")
	}
	for name := range c.Providers.Endpoints {
		if !provider.IsKnown(name) {
			return fmt.Errorf("providers.endpoints: unknown provider %q", name)
		}
	}
	if err := validateOrder("resolver.domestic_order", c.Resolver.DomesticOrder); err != nil {
		return err
	}
	if err := validateOrder("resolver.international_order", c.Resolver.InternationalOrder); err != nil {
		return err
	}
	if c.Sites.Concurrency <= 0 {
		return errors.New("sites.concurrency must be > 0")
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendLocal:
		if s.LocalDir == "" {
			return errors.New("store.local_dir must be set for the local backend")
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			return errors.New("store.redis_addr must be set for the redis backend")
		}
	case BackendPostgres:
		if s.PostgresDSN == "" {
			return errors.New("store.postgres_dsn must be set for the postgres backend")
		}
	case BackendDynamo:
		if s.DynamoTable == "" {
			return errors.New("store.dynamo_table must be set for the dynamodb backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", s.Backend)
	}
	if s.MaxEntries < 0 {
		return errors.New("store.max_entries must be >= 0")
	}
	return nil
}

func validateOrder(field string, order []string) error {
	if len(order) == 0 {
		return fmt.Errorf("%s must name at least one provider", field)
	}
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if !provider.IsKnown(name) {
			return fmt.Errorf("%s: unknown provider %q", field, name)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate provider %q", field, name)
		}
		seen[name] = true
	}
	return nil
}
