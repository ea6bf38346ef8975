// ABOUTME: Configuration loading and parsing for hookline-console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Reconnect interval bounds. Values outside the range are clamped so a
// typo in the config cannot hammer the relay or stall reconnects forever.
const (
	MinReconnectInterval = time.Second
	MaxReconnectInterval = 5 * time.Minute

	defaultReconnectInterval = 5 * time.Second
	defaultMaxReconnects     = 5
	defaultMetricsPath       = "/metrics"
)

// Config represents the complete hookline-console configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Relay    RelayConfig    `yaml:"relay"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	WebAdmin WebAdminConfig `yaml:"webadmin"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RelayConfig holds relay connection configuration
type RelayConfig struct {
	Address              string `yaml:"address"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	Enabled              bool   `yaml:"enabled"`

	ReconnectInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReconnectIntervalRaw string `yaml:"reconnect_interval"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WebAdminConfig holds console UI configuration
type WebAdminConfig struct {
	// BaseURL is the external URL for the console (used for invite links).
	// If not set, it's derived from server.http_addr.
	BaseURL string `yaml:"base_url"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
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

// applyDefaults fills unset fields and clamps the reconnect interval into
// its allowed range.
func (c *Config) applyDefaults() {
	if c.Relay.ReconnectInterval == 0 {
		c.Relay.ReconnectInterval = defaultReconnectInterval
	}
	if c.Relay.ReconnectInterval < MinReconnectInterval {
		c.Relay.ReconnectInterval = MinReconnectInterval
	}
	if c.Relay.ReconnectInterval > MaxReconnectInterval {
		c.Relay.ReconnectInterval = MaxReconnectInterval
	}
	if c.Relay.MaxReconnectAttempts <= 0 {
		c.Relay.MaxReconnectAttempts = defaultMaxReconnects
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if c.WebAdmin.BaseURL == "" && c.Server.HTTPAddr != "" {
		c.WebAdmin.BaseURL = "http://" + c.Server.HTTPAddr
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Relay.Enabled && c.Relay.Address == "" {
		return fmt.Errorf("relay.address is required when relay is enabled")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Relay.ReconnectIntervalRaw != "" {
		cfg.Relay.ReconnectInterval, err = time.ParseDuration(cfg.Relay.ReconnectIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing reconnect_interval %q: %w", cfg.Relay.ReconnectIntervalRaw, err)
		}
	}

	return nil
}
