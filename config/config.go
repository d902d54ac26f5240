// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/logging"
)

// Config holds all configuration for the claims server.
type Config struct {
	Port        int
	DBPath      string
	LogLevel    string
	LogFormat   string
	MetricsAddr string // empty disables the metrics listener

	AllowedOrigins []string

	// Optional JSON plan catalog; empty uses the built-in tables.
	CatalogPath string

	RolloverInterval time.Duration
	UsagePolicy      coverage.UsagePolicy

	// Load demo scenarios and expose /api/scenarios.
	DemoMode bool
}

// Load reads configuration from TICKETCOVER_* environment variables.
// A .env file is loaded if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("TICKETCOVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	interval, err := envOrDefaultDuration("TICKETCOVER_ROLLOVER_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	usage, err := coverage.ParseUsagePolicy(envOrDefault("TICKETCOVER_PLAN_CHANGE_USAGE", string(coverage.CarryOverUsage)))
	if err != nil {
		return nil, fmt.Errorf("TICKETCOVER_PLAN_CHANGE_USAGE: %w", err)
	}
	demo, err := envOrDefaultBool("TICKETCOVER_DEMO", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:             port,
		DBPath:           envOrDefault("TICKETCOVER_DB_PATH", "./data/ticket-cover.db"),
		LogLevel:         envOrDefault("TICKETCOVER_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("TICKETCOVER_LOG_FORMAT", "auto"),
		MetricsAddr:      envOrDefault("TICKETCOVER_METRICS_ADDR", ":9091"),
		AllowedOrigins:   splitList(envOrDefault("TICKETCOVER_CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		CatalogPath:      strings.TrimSpace(os.Getenv("TICKETCOVER_CATALOG_PATH")),
		RolloverInterval: interval,
		UsagePolicy:      usage,
		DemoMode:         demo,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges. Load calls it; callers that override fields
// from flags call it again.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("TICKETCOVER_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("TICKETCOVER_DB_PATH must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("TICKETCOVER_LOG_LEVEL: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("TICKETCOVER_LOG_FORMAT must be auto, json or console, got %q", c.LogFormat)
	}
	if c.RolloverInterval <= 0 {
		return fmt.Errorf("TICKETCOVER_ROLLOVER_INTERVAL must be greater than 0, got %s", c.RolloverInterval)
	}
	if _, err := coverage.ParseUsagePolicy(string(c.UsagePolicy)); err != nil {
		return fmt.Errorf("TICKETCOVER_PLAN_CHANGE_USAGE: %w", err)
	}
	return nil
}

// ListenAddr is the API listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
