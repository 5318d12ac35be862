// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store formats.
const (
	StoreFlat        = "flat"
	StoreDimensional = "dimensional"
	StoreSQLite      = "sqlite"
)

// Resolver modes. Kept as strings here so config does not import resolver.
const (
	ResolverLive = "live"
	ResolverMock = "mock"
)

var defaultStorePaths = map[string]string{
	StoreFlat:        "data.json",
	StoreDimensional: "ingredients.csv",
	StoreSQLite:      "hada.db",
}

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Store settings.
	StoreFormat string // "flat", "dimensional" or "sqlite"
	StorePath   string

	// Resolver settings. Mode must be explicit; it is never inferred from
	// whether OPENAI_API_KEY happens to be set.
	ResolverMode        string
	OpenAIAPIKey        string
	ResolverModel       string
	ResolverBaseURL     string
	ResolverTimeout     time.Duration
	ResolverConcurrency int
	ResolverRPS         float64
	// ExternalResolver is set when an embedding program supplies its own
	// resolver; mode and credential are then not checked.
	ExternalResolver bool

	// Pipeline settings.
	BatchConcurrency int
	MaxBatchSize     int

	// Inbound rate limiting on the analyze endpoints.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel string
}

// ConfigurationError reports invalid or missing configuration. It is always
// fatal at startup.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "config: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads configuration from environment variables with sensible defaults
// and validates it. Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	cfg, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads configuration from environment variables without validating
// it, so callers can apply overrides before calling Validate.
func Parse() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var cfg Config
	var err error

	cfg.Port, err = envInt("HADA_PORT", 8080)
	collect(err)
	cfg.ReadTimeout, err = envDuration("HADA_READ_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.WriteTimeout, err = envDuration("HADA_WRITE_TIMEOUT", 60*time.Second)
	collect(err)
	maxBody, err := envInt("HADA_MAX_REQUEST_BODY_BYTES", 1*1024*1024) // 1 MB default
	collect(err)
	cfg.MaxRequestBodyBytes = int64(maxBody)

	cfg.StoreFormat = strings.ToLower(envStr("HADA_STORE_FORMAT", StoreFlat))
	cfg.StorePath = envStr("HADA_STORE_PATH", DefaultStorePath(cfg.StoreFormat))

	cfg.ResolverMode = strings.ToLower(envStr("HADA_RESOLVER_MODE", ResolverLive))
	cfg.OpenAIAPIKey = envStr("OPENAI_API_KEY", "")
	cfg.ResolverModel = envStr("HADA_RESOLVER_MODEL", "gpt-4o-mini")
	cfg.ResolverBaseURL = envStr("HADA_RESOLVER_BASE_URL", "https://api.openai.com/v1")
	cfg.ResolverTimeout, err = envDuration("HADA_RESOLVER_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.ResolverConcurrency, err = envInt("HADA_RESOLVER_CONCURRENCY", 4)
	collect(err)
	cfg.ResolverRPS, err = envFloat("HADA_RESOLVER_RPS", 0)
	collect(err)

	cfg.BatchConcurrency, err = envInt("HADA_BATCH_CONCURRENCY", 8)
	collect(err)
	cfg.MaxBatchSize, err = envInt("HADA_MAX_BATCH_SIZE", 100)
	collect(err)

	cfg.RateLimitEnabled, err = envBool("HADA_RATE_LIMIT_ENABLED", true)
	collect(err)
	cfg.RateLimitRPS, err = envFloat("HADA_RATE_LIMIT_RPS", 5)
	collect(err)
	cfg.RateLimitBurst, err = envInt("HADA_RATE_LIMIT_BURST", 20)
	collect(err)

	cfg.OTELEndpoint = envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServiceName = envStr("OTEL_SERVICE_NAME", "hada")
	cfg.OTELInsecure, err = envBool("HADA_OTEL_INSECURE", false)
	collect(err)

	cfg.LogLevel = strings.ToLower(envStr("HADA_LOG_LEVEL", "info"))

	if len(errs) > 0 {
		return Config{}, &ConfigurationError{Err: errors.Join(errs...)}
	}
	return cfg, nil
}

// DefaultStorePath returns the artifact file name used for format when
// HADA_STORE_PATH is unset, or "" for an unknown format.
func DefaultStorePath(format string) string {
	return defaultStorePaths[format]
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("HADA_PORT must be between 1 and 65535"))
	}
	if _, ok := defaultStorePaths[c.StoreFormat]; !ok {
		errs = append(errs, fmt.Errorf("HADA_STORE_FORMAT=%q must be flat, dimensional or sqlite", c.StoreFormat))
	}
	if c.StorePath == "" {
		errs = append(errs, fmt.Errorf("HADA_STORE_PATH is required"))
	}
	switch {
	case c.ExternalResolver:
	case c.ResolverMode == ResolverLive:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required when HADA_RESOLVER_MODE=live (set HADA_RESOLVER_MODE=mock to run without it)"))
		}
	case c.ResolverMode == ResolverMock:
	default:
		errs = append(errs, fmt.Errorf("HADA_RESOLVER_MODE=%q must be live or mock", c.ResolverMode))
	}
	if c.ResolverTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HADA_RESOLVER_TIMEOUT must be positive"))
	}
	if c.ResolverConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("HADA_RESOLVER_CONCURRENCY must be positive"))
	}
	if c.ResolverRPS < 0 {
		errs = append(errs, fmt.Errorf("HADA_RESOLVER_RPS must not be negative"))
	}
	if c.BatchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("HADA_BATCH_CONCURRENCY must be positive"))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("HADA_MAX_BATCH_SIZE must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("HADA_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("HADA_RATE_LIMIT_RPS and HADA_RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("HADA_LOG_LEVEL=%q must be debug, info, warn or error", c.LogLevel))
	}
	if len(errs) > 0 {
		return &ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
