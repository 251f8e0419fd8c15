// ABOUTME: Configuration loading and parsing for the ember CLI
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ember configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Dedupe  DedupeConfig  `yaml:"dedupe"`
	Stream  StreamConfig  `yaml:"stream"`
	Task    TaskConfig    `yaml:"task"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds gateway connection configuration
type ServerConfig struct {
	URL string `yaml:"url"`
	// Sender is the name attached to outgoing messages
	Sender string `yaml:"sender"`
}

// DedupeConfig holds request-deduplication configuration
type DedupeConfig struct {
	TTL             time.Duration `yaml:"-"`
	CleanupInterval time.Duration `yaml:"-"`
	StaleAfter      time.Duration `yaml:"-"`
	DisableCache    bool          `yaml:"disable_cache"`

	// Raw string values for YAML unmarshaling
	TTLRaw             string `yaml:"ttl"`
	CleanupIntervalRaw string `yaml:"cleanup_interval"`
	StaleAfterRaw      string `yaml:"stale_after"`
}

// StreamConfig holds terminal streaming configuration
type StreamConfig struct {
	Throttle     time.Duration `yaml:"-"`
	HidePartials bool          `yaml:"hide_partials"`
	MaxPreview   int           `yaml:"max_preview"`
	NoColor      bool          `yaml:"no_color"`

	ThrottleRaw string `yaml:"throttle"`
}

// TaskConfig holds completion-polling configuration
type TaskConfig struct {
	PollInterval time.Duration `yaml:"-"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// HistoryConfig holds local transcript store configuration
type HistoryConfig struct {
	// Path to the SQLite database; empty disables local history
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config with every field at its default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:    "http://localhost:8080",
			Sender: "ember",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. A missing file is
// not an error: defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.Stream.MaxPreview < 0 {
		return fmt.Errorf("stream.max_preview must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Dedupe.TTLRaw, "dedupe.ttl", &cfg.Dedupe.TTL},
		{cfg.Dedupe.CleanupIntervalRaw, "dedupe.cleanup_interval", &cfg.Dedupe.CleanupInterval},
		{cfg.Dedupe.StaleAfterRaw, "dedupe.stale_after", &cfg.Dedupe.StaleAfter},
		{cfg.Stream.ThrottleRaw, "stream.throttle", &cfg.Stream.Throttle},
		{cfg.Task.PollIntervalRaw, "task.poll_interval", &cfg.Task.PollInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
