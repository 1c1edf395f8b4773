package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "icrc-ledger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultTokenTTL        = time.Hour
	defaultTokenFile       = "token.yaml"
	defaultPebbleDir       = "data/ledger"
	defaultRateLimit       = 600
	maxRateLimit           = 1_000_000
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPebble   = "pebble"
	BackendPostgres = "postgres"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret string
	TokenTTL  time.Duration
	// RateLimit is the number of mutating requests per caller per minute.
	RateLimit int

	// TokenFile is the YAML file holding the token parameters.
	TokenFile      string
	StorageBackend string
	PebbleDir      string
	// ArchiveStores lists the shard store ids in preference order.
	ArchiveStores        []string
	ArchiveStoreCapacity uint64
	LiveCapacity         uint64
	ArchiveTrigger       uint64
	ArchiveBlocks        uint64
	NotifyChannel        string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenFile:      getEnv("LEDGER_TOKEN_FILE", defaultTokenFile),
		StorageBackend: strings.ToLower(getEnv("LEDGER_STORAGE", BackendMemory)),
		PebbleDir:      getEnv("LEDGER_PEBBLE_DIR", defaultPebbleDir),
		ArchiveStores:  splitList(getEnv("LEDGER_ARCHIVE_STORES", "archive-0")),
		NotifyChannel:  os.Getenv("LEDGER_NOTIFY_CHANNEL"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = durationEnv("JWT_TTL_SECONDS", "JWT_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}

	rate, err := uintEnv("RATE_LIMIT_PER_MINUTE", defaultRateLimit)
	if err != nil {
		return Config{}, err
	}
	if rate > maxRateLimit {
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %d exceeds %d", rate, maxRateLimit)
	}
	cfg.RateLimit = int(rate)
	if cfg.LiveCapacity, err = uintEnv("LEDGER_LIVE_CAPACITY", 0); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveTrigger, err = uintEnv("LEDGER_ARCHIVE_TRIGGER", 0); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveBlocks, err = uintEnv("LEDGER_ARCHIVE_BLOCKS", 0); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveStoreCapacity, err = uintEnv("LEDGER_ARCHIVE_STORE_CAPACITY", 0); err != nil {
		return Config{}, err
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendPebble:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set for the %s backend", BackendPostgres)
		}
	default:
		return Config{}, fmt.Errorf("invalid LEDGER_STORAGE %q", cfg.StorageBackend)
	}
	if len(cfg.ArchiveStores) == 0 {
		return Config{}, fmt.Errorf("LEDGER_ARCHIVE_STORES must name at least one store")
	}
	if cfg.JWTSecret == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a duration given either in whole seconds or in Go
// duration syntax. The seconds form wins when both are set.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func uintEnv(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
