// Package config provides configuration management for flowport.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file. .env entries are
// promoted to the environment by the envfile package before Load runs.
const (
	EnvSourceURL    = "FLOWPORT_SOURCE_URL"
	EnvSourceAPIKey = "FLOWPORT_SOURCE_API_KEY"
	EnvTargetURL    = "FLOWPORT_TARGET_URL"
	EnvTargetAPIKey = "FLOWPORT_TARGET_API_KEY"
)

// ErrMissingURL and ErrMissingAPIKey classify configuration failures. They
// are fatal before any network call is made.
var (
	ErrMissingURL    = errors.New("missing url")
	ErrMissingAPIKey = errors.New("missing api key")
)

// Instance describes one reachable workflow service.
type Instance struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// Validate checks that the instance has both a URL and an API key.
// role names the instance in the error ("source" or "target").
func (i Instance) Validate(role string) error {
	if strings.TrimSpace(i.URL) == "" {
		return fmt.Errorf("%s: %w", role, ErrMissingURL)
	}
	if strings.TrimSpace(i.APIKey) == "" {
		return fmt.Errorf("%s: %w", role, ErrMissingAPIKey)
	}
	return nil
}

// TransferDefaults holds tunables for the HTTP clients and the transfer loop.
type TransferDefaults struct {
	Parallelism          int    `yaml:"parallelism"`
	MaxRetries           int    `yaml:"max_retries"`
	TimeoutMs            int    `yaml:"timeout_ms"`
	MaxRequestsPerSecond int    `yaml:"max_requests_per_second"`
	OutputDir            string `yaml:"output_dir"`
}

// Config is the top-level structure of ~/.flowport/config.yaml.
type Config struct {
	Source   Instance         `yaml:"source"`
	Target   Instance         `yaml:"target"`
	LogLevel string           `yaml:"log_level"`
	Transfer TransferDefaults `yaml:"transfer"`
}

// configPathFunc resolves the config file path. Tests can override this to
// point at a temp directory.
var configPathFunc = defaultConfigPath

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".flowport", "config.yaml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Transfer: TransferDefaults{
			Parallelism:          1,
			MaxRetries:           3,
			TimeoutMs:            10000,
			MaxRequestsPerSecond: 10,
			OutputDir:            "reports",
		},
	}
}

// Load reads the config file, falling back to defaults when it is missing,
// and applies environment variable overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	normalize(cfg)
	return cfg, nil
}

// LoadFile reads just the config file, without environment overrides. Editing
// commands use it so values that only live in the environment or the .env
// file are never copied into config.yaml.
func LoadFile() (*Config, error) {
	cfg := Default()

	path, err := configPathFunc()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	normalize(cfg)
	return cfg, nil
}

// Save writes the config file with 0600 permissions; it holds API keys.
func Save(cfg *Config) error {
	path, err := configPathFunc()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks that both instances are fully configured.
func (c *Config) Validate() error {
	if err := c.Source.Validate("source"); err != nil {
		return err
	}
	return c.Target.Validate("target")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvSourceURL); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv(EnvSourceAPIKey); v != "" {
		cfg.Source.APIKey = v
	}
	if v := os.Getenv(EnvTargetURL); v != "" {
		cfg.Target.URL = v
	}
	if v := os.Getenv(EnvTargetAPIKey); v != "" {
		cfg.Target.APIKey = v
	}
}

func normalize(cfg *Config) {
	cfg.Source.URL = strings.TrimRight(strings.TrimSpace(cfg.Source.URL), "/")
	cfg.Target.URL = strings.TrimRight(strings.TrimSpace(cfg.Target.URL), "/")
	if cfg.Transfer.Parallelism < 1 {
		cfg.Transfer.Parallelism = 1
	}
	if cfg.Transfer.MaxRetries < 1 {
		cfg.Transfer.MaxRetries = Default().Transfer.MaxRetries
	}
	if cfg.Transfer.TimeoutMs < 1 {
		cfg.Transfer.TimeoutMs = Default().Transfer.TimeoutMs
	}
	if cfg.Transfer.MaxRequestsPerSecond < 1 {
		cfg.Transfer.MaxRequestsPerSecond = Default().Transfer.MaxRequestsPerSecond
	}
}
