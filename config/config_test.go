package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.PageCap != 50 || cfg.EmptyPageLimit != 2 {
		t.Fatalf("crawl bounds = %d/%d, want 50/2", cfg.PageCap, cfg.EmptyPageLimit)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Fatalf("cache ttl = %v, want 5m", cfg.CacheTTL)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PRICEGEAR_PAGE_CAP", "10")
	t.Setenv("PRICEGEAR_PAGE_DELAY", "2s")
	t.Setenv("PRICEGEAR_CATEGORIES", "gpu, cpu , ")
	t.Setenv("PRICEGEAR_VERBOSE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PageCap != 10 {
		t.Fatalf("page cap = %d, want 10", cfg.PageCap)
	}
	if cfg.PageDelay != 2*time.Second {
		t.Fatalf("page delay = %v, want 2s", cfg.PageDelay)
	}
	if len(cfg.Categories) != 2 || cfg.Categories[0] != "gpu" || cfg.Categories[1] != "cpu" {
		t.Fatalf("categories = %v, want [gpu cpu]", cfg.Categories)
	}
	if !cfg.Verbose {
		t.Fatalf("verbose should be enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PRICEGEAR_MAX_RETRIES", "lots")
	t.Setenv("PRICEGEAR_REQUEST_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defaults := DefaultConfig()
	if cfg.MaxRetries != defaults.MaxRetries {
		t.Fatalf("max retries = %d, want default %d", cfg.MaxRetries, defaults.MaxRetries)
	}
	if cfg.RequestTimeout != defaults.RequestTimeout {
		t.Fatalf("request timeout = %v, want default %v", cfg.RequestTimeout, defaults.RequestTimeout)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no categories", mutate: func(c *Config) { c.Categories = nil }},
		{name: "zero page cap", mutate: func(c *Config) { c.PageCap = 0 }},
		{name: "zero empty page limit", mutate: func(c *Config) { c.EmptyPageLimit = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }},
		{name: "zero cache ttl", mutate: func(c *Config) { c.CacheTTL = 0 }},
		{name: "zero watch interval", mutate: func(c *Config) { c.WatchInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
