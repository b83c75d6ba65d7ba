// Package config loads contest hub client settings from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always take precedence over it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvBaseURL        = "CONTESTHUB_API_BASE_URL"
	EnvUserAgent      = "CONTESTHUB_USER_AGENT"
	EnvToken          = "CONTESTHUB_TOKEN"
	EnvTimeout        = "CONTESTHUB_TIMEOUT"
	EnvRateLimit      = "CONTESTHUB_RATE_LIMIT"
	EnvRedisAddr      = "CONTESTHUB_REDIS_ADDR"
	EnvRedisDB        = "CONTESTHUB_REDIS_DB"
	EnvPageSize       = "CONTESTHUB_PAGE_SIZE"
	EnvStaleTime      = "CONTESTHUB_STALE_TIME"
	EnvRetries        = "CONTESTHUB_RETRIES"
	EnvRetryDelay     = "CONTESTHUB_RETRY_DELAY"
	EnvDebounce       = "CONTESTHUB_DEBOUNCE"
	EnvLogLevel       = "CONTESTHUB_LOG_LEVEL"
	EnvLogPretty      = "CONTESTHUB_LOG_PRETTY"
	EnvProxyAddr      = "CONTESTHUB_PROXY_ADDR"
	EnvAllowedOrigins = "CONTESTHUB_ALLOWED_ORIGINS"
)

// Config holds every tunable of the client, CLI and proxy.
type Config struct {
	BaseURL   string
	UserAgent string
	Token     string
	Timeout   time.Duration
	RateLimit int // requests per second

	// Redis backs the query cache and shared throttle state. Empty disables both.
	RedisAddr string
	RedisDB   int

	PageSize      int
	StaleTime     time.Duration
	Retries       int
	RetryDelay    time.Duration
	DebounceDelay time.Duration

	LogLevel  string
	LogPretty bool

	ProxyAddr      string
	AllowedOrigins []string
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	return Config{
		BaseURL:        "http://localhost:5000",
		UserAgent:      "contesthub-client/0.1.0",
		Timeout:        30 * time.Second,
		RateLimit:      10,
		PageSize:       10,
		StaleTime:      5 * time.Minute,
		Retries:        2,
		RetryDelay:     1 * time.Second,
		DebounceDelay:  500 * time.Millisecond,
		LogLevel:       "info",
		ProxyAddr:      ":8080",
		AllowedOrigins: []string{"http://localhost:5173"},
	}
}

// Load reads .env (if any) and the process environment on top of Default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	cfg.BaseURL = getEnv(EnvBaseURL, cfg.BaseURL)
	cfg.UserAgent = getEnv(EnvUserAgent, cfg.UserAgent)
	cfg.Token = getEnv(EnvToken, cfg.Token)
	cfg.RedisAddr = getEnv(EnvRedisAddr, cfg.RedisAddr)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.ProxyAddr = getEnv(EnvProxyAddr, cfg.ProxyAddr)

	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	cfg.Timeout = getDuration(EnvTimeout, cfg.Timeout, &errs)
	cfg.StaleTime = getDuration(EnvStaleTime, cfg.StaleTime, &errs)
	cfg.RetryDelay = getDuration(EnvRetryDelay, cfg.RetryDelay, &errs)
	cfg.DebounceDelay = getDuration(EnvDebounce, cfg.DebounceDelay, &errs)

	cfg.RateLimit = getInt(EnvRateLimit, cfg.RateLimit, &errs)
	cfg.RedisDB = getInt(EnvRedisDB, cfg.RedisDB, &errs)
	cfg.PageSize = getInt(EnvPageSize, cfg.PageSize, &errs)
	cfg.Retries = getInt(EnvRetries, cfg.Retries, &errs)

	if v := os.Getenv(EnvLogPretty); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvLogPretty, err))
		}
		cfg.LogPretty = b
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail later and less clearly.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be > 0 (got %d)", c.PageSize)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0 (got %d)", c.Retries)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate limit must be > 0 (got %d)", c.RateLimit)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid int %q", key, value))
		return defaultValue
	}
	return i
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return defaultValue
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
