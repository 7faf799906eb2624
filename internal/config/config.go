// ABOUTME: Configuration loading and parsing for the coven widget
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Durable storage drivers accepted by storage.durable.
const (
	DurableSQLite = "sqlite"
	DurableRedis  = "redis"
	DurableMemory = "memory"
)

// Config represents the complete widget configuration
type Config struct {
	Widget    WidgetConfig    `yaml:"widget" toml:"widget"`
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" toml:"lifecycle"`
	Handover  HandoverConfig  `yaml:"handover" toml:"handover"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// WidgetConfig identifies the widget instance and its presentation tunables
type WidgetConfig struct {
	Key              string  `yaml:"key" toml:"key"`
	HelpfulThreshold float64 `yaml:"helpful_threshold" toml:"helpful_threshold"`
}

// BackendConfig holds the REST backend location and credentials
type BackendConfig struct {
	URL     string        `yaml:"url" toml:"url"`
	Token   string        `yaml:"token" toml:"token"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// StorageConfig selects the driver behind the durable scope.
// The ephemeral scope is always process memory.
type StorageConfig struct {
	Durable     string        `yaml:"durable" toml:"durable"`
	SQLitePath  string        `yaml:"sqlite_path" toml:"sqlite_path"`
	RedisURL    string        `yaml:"redis_url" toml:"redis_url"`
	RedisPrefix string        `yaml:"redis_prefix" toml:"redis_prefix"`
	RedisTTL    time.Duration `yaml:"-" toml:"-"`

	RedisTTLRaw string `yaml:"redis_ttl" toml:"redis_ttl"`
}

// RateLimitConfig bounds outbound visitor messages
type RateLimitConfig struct {
	Window time.Duration `yaml:"-" toml:"-"`
	Max    int           `yaml:"max" toml:"max"`

	WindowRaw string `yaml:"window" toml:"window"`
}

// SyncConfig holds the poll backoff ladder
type SyncConfig struct {
	Ladder       []time.Duration `yaml:"-" toml:"-"`
	MaxIdlePolls int             `yaml:"max_idle_polls" toml:"max_idle_polls"`
	// SeenLimit bounds the rendered-message-id set; 0 means unbounded.
	SeenLimit int `yaml:"seen_limit" toml:"seen_limit"`

	LadderRaw []string `yaml:"ladder" toml:"ladder"`
}

// LifecycleConfig holds conversation inactivity timing
type LifecycleConfig struct {
	InactivityCheck time.Duration `yaml:"-" toml:"-"`

	InactivityCheckRaw string `yaml:"inactivity_check" toml:"inactivity_check"`
}

// HandoverConfig holds the live-agent handover settings
type HandoverConfig struct {
	Method       string        `yaml:"method" toml:"method"`
	ConfirmDelay time.Duration `yaml:"-" toml:"-"`

	ConfirmDelayRaw string `yaml:"confirm_delay" toml:"confirm_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults returns a Config with every tunable set. Widget key and backend URL
// are left empty because they have no sensible default.
func Defaults() *Config {
	return &Config{
		Widget: WidgetConfig{
			HelpfulThreshold: 0.85,
		},
		Backend: BackendConfig{
			Timeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Durable:     DurableMemory,
			RedisPrefix: "coven-widget:",
			RedisTTL:    30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Max:    10,
		},
		Sync: SyncConfig{
			Ladder: []time.Duration{
				3 * time.Second,
				5 * time.Second,
				10 * time.Second,
				30 * time.Second,
				60 * time.Second,
			},
			MaxIdlePolls: 10,
			SeenLimit:    2000,
		},
		Lifecycle: LifecycleConfig{
			InactivityCheck: time.Minute,
		},
		Handover: HandoverConfig{
			Method:       "live_chat",
			ConfirmDelay: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw config bytes. isTOML selects the decoder.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if isTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
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
	if c.Widget.Key == "" {
		return fmt.Errorf("widget.key is required")
	}
	if c.Widget.HelpfulThreshold < 0 || c.Widget.HelpfulThreshold > 1 {
		return fmt.Errorf("widget.helpful_threshold must be between 0 and 1")
	}

	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https scheme")
	}

	switch c.Storage.Durable {
	case DurableMemory:
	case DurableSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case DurableRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("storage.durable must be one of memory, sqlite, redis (got %q)", c.Storage.Durable)
	}

	if c.RateLimit.Max <= 0 {
		return fmt.Errorf("rate_limit.max must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}

	if len(c.Sync.Ladder) == 0 {
		return fmt.Errorf("sync.ladder must have at least one step")
	}
	for i, step := range c.Sync.Ladder {
		if step <= 0 {
			return fmt.Errorf("sync.ladder[%d] must be positive", i)
		}
		if i > 0 && step < c.Sync.Ladder[i-1] {
			return fmt.Errorf("sync.ladder must not decrease (step %d)", i)
		}
	}
	if c.Sync.MaxIdlePolls <= 0 {
		return fmt.Errorf("sync.max_idle_polls must be positive")
	}
	if c.Sync.SeenLimit < 0 {
		return fmt.Errorf("sync.seen_limit must not be negative")
	}

	if c.Lifecycle.InactivityCheck <= 0 {
		return fmt.Errorf("lifecycle.inactivity_check must be positive")
	}

	if c.Handover.Method == "" {
		return fmt.Errorf("handover.method is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Storage.RedisTTLRaw != "" {
		cfg.Storage.RedisTTL, err = time.ParseDuration(cfg.Storage.RedisTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing storage.redis_ttl %q: %w", cfg.Storage.RedisTTLRaw, err)
		}
	}

	if cfg.RateLimit.WindowRaw != "" {
		cfg.RateLimit.Window, err = time.ParseDuration(cfg.RateLimit.WindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_limit.window %q: %w", cfg.RateLimit.WindowRaw, err)
		}
	}

	if len(cfg.Sync.LadderRaw) > 0 {
		ladder := make([]time.Duration, 0, len(cfg.Sync.LadderRaw))
		for _, raw := range cfg.Sync.LadderRaw {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parsing sync.ladder step %q: %w", raw, err)
			}
			ladder = append(ladder, d)
		}
		cfg.Sync.Ladder = ladder
	}

	if cfg.Lifecycle.InactivityCheckRaw != "" {
		cfg.Lifecycle.InactivityCheck, err = time.ParseDuration(cfg.Lifecycle.InactivityCheckRaw)
		if err != nil {
			return fmt.Errorf("parsing lifecycle.inactivity_check %q: %w", cfg.Lifecycle.InactivityCheckRaw, err)
		}
	}

	if cfg.Handover.ConfirmDelayRaw != "" {
		cfg.Handover.ConfirmDelay, err = time.ParseDuration(cfg.Handover.ConfirmDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing handover.confirm_delay %q: %w", cfg.Handover.ConfirmDelayRaw, err)
		}
	}

	return nil
}
