package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	API         APIConfig       `toml:"api"`
	Tracker     TrackerConfig   `toml:"tracker"`
	Cache       CacheConfig     `toml:"cache"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// APIConfig contains connection settings for the payslip backend API
type APIConfig struct {
	BaseURL        string `toml:"base_url"`        // Backend API base URL
	Token          string `toml:"token"`           // Bearer token for authenticated requests
	RequestTimeout string `toml:"request_timeout"` // e.g., "30s" - HTTP request timeout
	RateLimit      string `toml:"rate_limit"`      // e.g., "250ms" - minimum time between API requests
}

// TrackerConfig controls job status polling behavior
type TrackerConfig struct {
	PollInterval string `toml:"poll_interval"` // e.g., "3s" - delay between status polls
	MaxPolls     int    `toml:"max_polls"`     // Maximum polls before a job is declared abandoned (0 = unlimited)
}

// CacheConfig contains settings for the local collection cache
type CacheConfig struct {
	Path           string `toml:"path"`             // Badger database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete cache on startup for clean runs
}

// SchedulerConfig controls deferred batch sending
type SchedulerConfig struct {
	Enabled bool `toml:"enabled"` // Enable the "send later" scheduler
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in slipstream.toml; protocol
// constants (multipart field names, endpoint paths) are hardcoded.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		API: APIConfig{
			BaseURL:        "http://localhost:3000",
			RequestTimeout: "30s",
			RateLimit:      "250ms",
		},
		Tracker: TrackerConfig{
			PollInterval: "3s", // Matches the backend's expected status cadence
			MaxPolls:     0,    // Unlimited - a stuck job polls until cancelled
		},
		Cache: CacheConfig{
			Path: "./data",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SLIPSTREAM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// API configuration
	if baseURL := os.Getenv("SLIPSTREAM_API_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if token := os.Getenv("SLIPSTREAM_API_TOKEN"); token != "" {
		config.API.Token = token
	}
	if timeout := os.Getenv("SLIPSTREAM_API_REQUEST_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.API.RequestTimeout = timeout
		}
	}
	if rateLimit := os.Getenv("SLIPSTREAM_API_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.API.RateLimit = rateLimit
		}
	}

	// Tracker configuration
	if pollInterval := os.Getenv("SLIPSTREAM_TRACKER_POLL_INTERVAL"); pollInterval != "" {
		if _, err := time.ParseDuration(pollInterval); err == nil {
			config.Tracker.PollInterval = pollInterval
		}
	}
	if maxPolls := os.Getenv("SLIPSTREAM_TRACKER_MAX_POLLS"); maxPolls != "" {
		if mp, err := strconv.Atoi(maxPolls); err == nil && mp >= 0 {
			config.Tracker.MaxPolls = mp
		}
	}

	// Cache configuration
	if cachePath := os.Getenv("SLIPSTREAM_CACHE_PATH"); cachePath != "" {
		config.Cache.Path = cachePath
	}
	if reset := os.Getenv("SLIPSTREAM_CACHE_RESET_ON_STARTUP"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Cache.ResetOnStartup = r
		}
	}

	// Scheduler configuration
	if enabled := os.Getenv("SLIPSTREAM_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}

	// Logging configuration
	if level := os.Getenv("SLIPSTREAM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SLIPSTREAM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SLIPSTREAM_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, baseURL, token string) {
	// Command-line flags have highest priority
	if baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if token != "" {
		config.API.Token = token
	}
}

// PollInterval returns the parsed poll interval, falling back to 3s on
// a missing or unparseable value.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Tracker.PollInterval)
	if err != nil || d <= 0 {
		return 3 * time.Second
	}
	return d
}

// RequestTimeout returns the parsed API request timeout (default 30s)
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RateLimit returns the parsed minimum delay between API requests (default 250ms)
func (c *Config) RateLimit() time.Duration {
	d, err := time.ParseDuration(c.API.RateLimit)
	if err != nil || d < 0 {
		return 250 * time.Millisecond
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := trimSpace(c.Environment)
	return env == "production" || env == "prod"
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
