// ABOUTME: Configuration loading and parsing for leadwatch
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete leadwatch configuration.
type Config struct {
	Backend      BackendConfig      `yaml:"backend"`
	Conversation ConversationConfig `yaml:"conversation"`
	Triage       TriageConfig       `yaml:"triage"`
	Web          WebConfig          `yaml:"web"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BackendConfig holds the remote backend connection settings.
type BackendConfig struct {
	// BaseURL is the single backend root. Empty defers to the
	// LEADWATCH_BACKEND_URL environment variable, then local development.
	BaseURL string `yaml:"base_url"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// ConversationConfig tunes the per-lead conversation store.
type ConversationConfig struct {
	PollInterval time.Duration `yaml:"-"`
	AutoScroll   bool          `yaml:"auto_scroll"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// TriageConfig tunes the conversation list store.
type TriageConfig struct {
	Limit        int           `yaml:"limit"`
	PollInterval time.Duration `yaml:"-"`
	AutoRefresh  bool          `yaml:"auto_refresh"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// WebConfig holds the local web UI settings.
type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Metrics    bool   `yaml:"metrics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with the stock values: 5s conversation
// polling, 10s triage polling, 20-row triage cap, 10s request timeout.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
		},
		Conversation: ConversationConfig{
			PollInterval: 5 * time.Second,
			AutoScroll:   true,
		},
		Triage: TriageConfig{
			Limit:        20,
			PollInterval: 10 * time.Second,
			AutoRefresh:  true,
		},
		Web: WebConfig{
			ListenAddr: "127.0.0.1:8777",
			Metrics:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values. Keys missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
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

// LoadOrDefault loads the config at path, falling back to defaults when the
// file does not exist. Parse and validation errors are still fatal.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are usable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil {
			return fmt.Errorf("backend.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend.base_url must be http or https, got %q", u.Scheme)
		}
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}

	if c.Conversation.PollInterval <= 0 {
		return fmt.Errorf("conversation.poll_interval must be positive")
	}

	if c.Triage.PollInterval <= 0 {
		return fmt.Errorf("triage.poll_interval must be positive")
	}

	if c.Triage.Limit <= 0 {
		return fmt.Errorf("triage.limit must be positive")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Conversation.PollIntervalRaw != "" {
		cfg.Conversation.PollInterval, err = time.ParseDuration(cfg.Conversation.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation.poll_interval %q: %w", cfg.Conversation.PollIntervalRaw, err)
		}
	}

	if cfg.Triage.PollIntervalRaw != "" {
		cfg.Triage.PollInterval, err = time.ParseDuration(cfg.Triage.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing triage.poll_interval %q: %w", cfg.Triage.PollIntervalRaw, err)
		}
	}

	return nil
}
