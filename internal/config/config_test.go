package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LEDGER_STORAGE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendMemory || cfg.Address() != ":8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.ShutdownPeriod != 10*time.Second || cfg.RateLimit != defaultRateLimit {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if len(cfg.ArchiveStores) != 1 || cfg.ArchiveStores[0] != "archive-0" {
		t.Fatalf("unexpected archive stores %v", cfg.ArchiveStores)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", ":9000")
	t.Setenv("LEDGER_STORAGE", "Pebble")
	t.Setenv("LEDGER_ARCHIVE_STORES", "hot, cold ,")
	t.Setenv("LEDGER_LIVE_CAPACITY", "5000")
	t.Setenv("LEDGER_ARCHIVE_TRIGGER", "200")
	t.Setenv("LEDGER_ARCHIVE_BLOCKS", "100")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("JWT_TTL_SECONDS", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendPebble || cfg.Address() != ":9000" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.ArchiveStores) != 2 || cfg.ArchiveStores[1] != "cold" {
		t.Fatalf("unexpected archive stores %v", cfg.ArchiveStores)
	}
	if cfg.LiveCapacity != 5000 || cfg.ArchiveTrigger != 200 || cfg.ArchiveBlocks != 100 {
		t.Fatalf("unexpected archive settings %+v", cfg)
	}
	if cfg.ShutdownPeriod != 3*time.Second || cfg.TokenTTL != time.Minute {
		t.Fatalf("unexpected durations %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":       {"LEDGER_STORAGE": "sqlite"},
		"postgres without url":  {"LEDGER_STORAGE": "postgres", "DATABASE_URL": ""},
		"bad capacity":          {"LEDGER_LIVE_CAPACITY": "-1"},
		"bad shutdown":          {"SHUTDOWN_TIMEOUT_SECONDS": "soon"},
		"no secret outside dev": {"APP_ENV": "production", "JWT_SECRET": ""},
		"rate limit too large":  {"RATE_LIMIT_PER_MINUTE": "18446744073709551615"},
		"negative rate limit":   {"RATE_LIMIT_PER_MINUTE": "-5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
