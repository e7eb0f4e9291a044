// Package config centralizes runtime tunables. Defaults are safe for
// local use; every field can be overridden through the environment
// (optionally seeded from a .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every knob the pipeline needs.
type Config struct {
	// DatabaseURL is the postgres DSN. Empty selects the in-memory store.
	DatabaseURL string
	// MaxDBConns caps the pgx pool.
	MaxDBConns int

	// Categories crawled by `ingest` and `watch` when none are given.
	Categories []string

	// UserAgent sent on every request, static and browser alike.
	UserAgent string
	// RequestTimeout bounds a single page fetch.
	RequestTimeout time.Duration
	// SettleDelay is extra render time granted to browser-backed shops.
	SettleDelay time.Duration

	// PageCap is the hard per-shop page limit for one crawl.
	PageCap int
	// EmptyPageLimit stops a crawl after this many consecutive pages
	// without products.
	EmptyPageLimit int
	// PageDelay is the pause between successive pages of one shop.
	PageDelay time.Duration
	// ShopTimeout bounds one shop's whole crawl.
	ShopTimeout time.Duration

	// MaxRetries, RetryBackoff and RetryBackoffMax shape network retries.
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	// BatchSize chunks catalog writes into transactions.
	BatchSize int
	// StoreRetries, StoreBackoff and StoreBackoffMax shape retries of
	// transient database failures.
	StoreRetries    int
	StoreBackoff    time.Duration
	StoreBackoffMax time.Duration

	// CompareTimeout bounds each shop during an interactive comparison.
	CompareTimeout time.Duration
	// CacheTTL and CacheSize shape the comparison result cache.
	CacheTTL  time.Duration
	CacheSize int

	// WatchInterval is the pause between full re-crawls in watch mode.
	WatchInterval time.Duration

	// MetricsAddr exposes prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string
	// Verbose enables debug logging.
	Verbose bool
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		MaxDBConns: 8,
		Categories: []string{
			"laptop", "mouse", "keyboard", "monitor", "webcam",
			"microphone", "speaker", "headphone", "ram", "ssd", "hdd",
		},
		UserAgent:       "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		RequestTimeout:  30 * time.Second,
		SettleDelay:     1500 * time.Millisecond,
		PageCap:         50,
		EmptyPageLimit:  2,
		PageDelay:       300 * time.Millisecond,
		ShopTimeout:     10 * time.Minute,
		MaxRetries:      3,
		RetryBackoff:    2 * time.Second,
		RetryBackoffMax: 8 * time.Second,
		BatchSize:       100,
		StoreRetries:    2,
		StoreBackoff:    500 * time.Millisecond,
		StoreBackoffMax: 2 * time.Second,
		CompareTimeout:  8 * time.Second,
		CacheTTL:        5 * time.Minute,
		CacheSize:       256,
		WatchInterval:   time.Hour,
	}
}

// Load builds the configuration from defaults plus the environment.
// A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.DatabaseURL = getEnv("PRICEGEAR_DATABASE_URL", cfg.DatabaseURL)
	cfg.MaxDBConns = envInt("PRICEGEAR_MAX_DB_CONNS", cfg.MaxDBConns)
	if raw := os.Getenv("PRICEGEAR_CATEGORIES"); raw != "" {
		cfg.Categories = splitList(raw)
	}
	cfg.UserAgent = getEnv("PRICEGEAR_USER_AGENT", cfg.UserAgent)
	cfg.RequestTimeout = envDuration("PRICEGEAR_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.SettleDelay = envDuration("PRICEGEAR_SETTLE_DELAY", cfg.SettleDelay)
	cfg.PageCap = envInt("PRICEGEAR_PAGE_CAP", cfg.PageCap)
	cfg.EmptyPageLimit = envInt("PRICEGEAR_EMPTY_PAGE_LIMIT", cfg.EmptyPageLimit)
	cfg.PageDelay = envDuration("PRICEGEAR_PAGE_DELAY", cfg.PageDelay)
	cfg.ShopTimeout = envDuration("PRICEGEAR_SHOP_TIMEOUT", cfg.ShopTimeout)
	cfg.MaxRetries = envInt("PRICEGEAR_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = envDuration("PRICEGEAR_RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.RetryBackoffMax = envDuration("PRICEGEAR_RETRY_BACKOFF_MAX", cfg.RetryBackoffMax)
	cfg.BatchSize = envInt("PRICEGEAR_BATCH_SIZE", cfg.BatchSize)
	cfg.StoreRetries = envInt("PRICEGEAR_STORE_RETRIES", cfg.StoreRetries)
	cfg.StoreBackoff = envDuration("PRICEGEAR_STORE_BACKOFF", cfg.StoreBackoff)
	cfg.StoreBackoffMax = envDuration("PRICEGEAR_STORE_BACKOFF_MAX", cfg.StoreBackoffMax)
	cfg.CompareTimeout = envDuration("PRICEGEAR_COMPARE_TIMEOUT", cfg.CompareTimeout)
	cfg.CacheTTL = envDuration("PRICEGEAR_CACHE_TTL", cfg.CacheTTL)
	cfg.CacheSize = envInt("PRICEGEAR_CACHE_SIZE", cfg.CacheSize)
	cfg.WatchInterval = envDuration("PRICEGEAR_WATCH_INTERVAL", cfg.WatchInterval)
	cfg.MetricsAddr = getEnv("PRICEGEAR_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Verbose = envBool("PRICEGEAR_VERBOSE", cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would wedge or hammer the shops.
func (c Config) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("config: at least one category is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.PageCap <= 0 {
		return fmt.Errorf("config: page cap must be positive, got %d", c.PageCap)
	}
	if c.EmptyPageLimit <= 0 {
		return fmt.Errorf("config: empty page limit must be positive, got %d", c.EmptyPageLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("config: retry backoff must be positive, got %s", c.RetryBackoff)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch size must be positive, got %d", c.BatchSize)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache ttl must be positive, got %s", c.CacheTTL)
	}
	if c.WatchInterval <= 0 {
		return fmt.Errorf("config: watch interval must be positive, got %s", c.WatchInterval)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
