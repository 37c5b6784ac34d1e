// ABOUTME: Configuration loading and parsing for meshwatch
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Source formats.
const (
	FormatJSONL   = "jsonl"
	FormatCapture = "capture"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "MESHWATCH_CONFIG"

// Config represents the complete meshwatch configuration
type Config struct {
	Source  SourceConfig  `yaml:"source" toml:"source"`
	Limits  LimitsConfig  `yaml:"limits" toml:"limits"`
	Dedupe  DedupeConfig  `yaml:"dedupe" toml:"dedupe"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Capture CaptureConfig `yaml:"capture" toml:"capture"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// SourceConfig selects the recorded frames to play back
type SourceConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Format string `yaml:"format" toml:"format"` // jsonl or capture
	// Events the source offers to the dispatcher. Empty offers the
	// firehose and my-node-info events only.
	Events []string `yaml:"events" toml:"events"`
}

// LimitsConfig caps the in-memory collections
type LimitsConfig struct {
	Events int `yaml:"events" toml:"events"`
	Logs   int `yaml:"logs" toml:"logs"`
	Nodes  int `yaml:"nodes" toml:"nodes"`
}

// DedupeConfig controls per-packet duplicate suppression
type DedupeConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`

	// Raw string value for unmarshaling
	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// HTTPConfig holds the API listener address
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// CaptureConfig holds the frame capture database location. Empty disables
// recording.
type CaptureConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
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

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Path returns the config file location.
// Priority: MESHWATCH_CONFIG env var > XDG_CONFIG_HOME/meshwatch/config.yaml > ~/.config/meshwatch/config.yaml
func Path() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "meshwatch", "config.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Source.Format == "" {
		c.Source.Format = FormatJSONL
	}
	if c.Limits.Events == 0 {
		c.Limits.Events = 200
	}
	if c.Limits.Logs == 0 {
		c.Limits.Logs = 500
	}
	if c.Limits.Nodes == 0 {
		c.Limits.Nodes = 200
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 30 * time.Second
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 1024
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8090"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case "":
		c.Logging.Level = "info"
	case "warning":
		c.Logging.Level = "warn"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Source.Format != FormatJSONL && c.Source.Format != FormatCapture {
		return fmt.Errorf("source.format must be %q or %q, got %q", FormatJSONL, FormatCapture, c.Source.Format)
	}
	if c.Limits.Events < 0 || c.Limits.Logs < 0 || c.Limits.Nodes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("dedupe.ttl must not be negative")
	}
	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Dedupe.TTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		cfg.Dedupe.TTL = ttl
	}
	return nil
}
