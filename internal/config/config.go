package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models courtside.yml.
type Config struct {
	Matches struct {
		MaxSlots int `yaml:"max_slots"`
	} `yaml:"matches"`
	Scoring struct {
		BaseURL        string  `yaml:"base_url"`
		MaxAttempts    int     `yaml:"max_attempts"`
		BackoffSeconds float64 `yaml:"backoff_seconds"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"scoring"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"auth"`
	Broadcast struct {
		Hooks []BroadcastHook `yaml:"hooks"`
	} `yaml:"broadcast"`
}

// BroadcastHook is one outbound notification endpoint.
type BroadcastHook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Topics         []string `yaml:"topics,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Active reports whether the hook should receive events.
func (h BroadcastHook) Active() bool {
	return h.URL != "" && (h.Enabled == nil || *h.Enabled)
}

// ScoringBackoff returns the initial retry backoff for the scoring provider.
func (c *Config) ScoringBackoff() time.Duration {
	if c.Scoring.BackoffSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.Scoring.BackoffSeconds * float64(time.Second))
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Matches.MaxSlots < 0 {
		return fmt.Errorf("config.matches.max_slots must not be negative")
	}
	if c.Scoring.MaxAttempts < 0 {
		return fmt.Errorf("config.scoring.max_attempts must not be negative")
	}
	for i, h := range c.Broadcast.Hooks {
		if h.URL == "" {
			return fmt.Errorf("config.broadcast.hooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "courtside.yml")
}

// Default returns a Config with working defaults and no scoring provider.
func Default() *Config {
	var cfg Config
	cfg.Matches.MaxSlots = 50
	cfg.Scoring.MaxAttempts = 3
	cfg.Scoring.BackoffSeconds = 1
	cfg.Scoring.TimeoutSeconds = 5
	cfg.Auth.AllowActorHeader = true
	return &cfg
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Omitted scoring
// retry fields pick up the defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
