// ABOUTME: Configuration loading and parsing for grounding-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete grounding-gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Project   ProjectConfig   `yaml:"project"`
	Agents    AgentsConfig    `yaml:"agents"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// ProjectConfig holds the Azure AI Foundry project connection settings.
type ProjectConfig struct {
	// Endpoint is the project endpoint URL. Falls back to the
	// AZURE_AI_PROJECT_ENDPOINT environment variable when unset.
	Endpoint string `yaml:"endpoint"`

	// Token is the bearer token used for project API calls. Falls back to
	// the AZURE_AI_PROJECT_TOKEN environment variable when unset.
	Token string `yaml:"token"`

	// APIVersion selects the agents REST API version.
	APIVersion string `yaml:"api_version"`
}

// AgentsConfig holds agent pool and backend call configuration.
type AgentsConfig struct {
	// DefaultModel is the pool used when model-based dispatch names a model
	// with no live instances.
	DefaultModel string `yaml:"default_model"`

	// ModelMapPath optionally points at a TOML file extending the built-in
	// model token table.
	ModelMapPath string `yaml:"model_map_path"`

	RequestTimeout time.Duration `yaml:"-"`
	PollInterval   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
	PollIntervalRaw   string `yaml:"poll_interval"`
}

// DispatchConfig holds request dispatch policy.
type DispatchConfig struct {
	// StrictErrors makes backend failures surface as 502 responses instead
	// of the historical 200-with-error-body behavior.
	StrictErrors bool `yaml:"strict_errors"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File enables rotating file output when set; stdout otherwise.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no config file exists.
// The service is designed to run from environment variables alone, so
// defaults cover everything except the agent bindings themselves.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{HTTPAddr: "0.0.0.0:8080"},
		Project: ProjectConfig{
			APIVersion: "2025-05-01",
		},
		Agents: AgentsConfig{
			DefaultModel:   "gpt-4o",
			RequestTimeout: 2 * time.Minute,
			PollInterval:   2 * time.Second,
		},
		Logging: LoggingConfig{Level: "info"},
	}
	cfg.applyEnvFallbacks()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
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

	cfg.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvFallbacks fills connection settings from the conventional
// environment variables when the config file leaves them empty.
func (c *Config) applyEnvFallbacks() {
	if c.Project.Endpoint == "" {
		c.Project.Endpoint = os.Getenv("AZURE_AI_PROJECT_ENDPOINT")
	}
	if c.Project.Token == "" {
		c.Project.Token = os.Getenv("AZURE_AI_PROJECT_TOKEN")
	}
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

// Validate checks that all required configuration fields are present and
// valid. A missing project endpoint is deliberately not an error here: the
// service still starts with an empty agent pool and reports it via /health.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Agents.DefaultModel == "" {
		return fmt.Errorf("agents.default_model is required")
	}

	if c.Agents.PollInterval < 0 || c.Agents.RequestTimeout < 0 {
		return fmt.Errorf("agents timings must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.RequestTimeoutRaw != "" {
		cfg.Agents.RequestTimeout, err = time.ParseDuration(cfg.Agents.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Agents.RequestTimeoutRaw, err)
		}
	}

	if cfg.Agents.PollIntervalRaw != "" {
		cfg.Agents.PollInterval, err = time.ParseDuration(cfg.Agents.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Agents.PollIntervalRaw, err)
		}
	}

	return nil
}
