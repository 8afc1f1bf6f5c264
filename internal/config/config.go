// Package config handles configuration loading and management for taskweave.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskweave.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey authenticates direct API access. Supports ${VAR} expansion.
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes requests through AWS Bedrock instead of the
	// direct API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// Model is the model id used for task decomposition.
	Model string `mapstructure:"model"`
}

// DefaultsConfig holds default values for taskweave sessions.
type DefaultsConfig struct {
	Mode             string `mapstructure:"mode"`
	MaxRetries       int    `mapstructure:"max_retries"`
	ConcurrencyLimit int    `mapstructure:"concurrency_limit"`
	ContinueOnError  bool   `mapstructure:"continue_on_error"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	// Definitions is the path to the worker definitions YAML file.
	Definitions string `mapstructure:"definitions"`
	// DefaultCapacity bounds worker types with no explicit definition.
	DefaultCapacity int `mapstructure:"default_capacity"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Decompose bounds one reasoning-service call.
	Decompose time.Duration `mapstructure:"decompose"`
	// Request bounds one correlated bus request.
	Request time.Duration `mapstructure:"request"`
}

// DebugConfig holds debug logging settings.
type DebugConfig struct {
	// LogPath enables file-based debug logging when non-empty.
	LogPath string `mapstructure:"log_path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.taskweave.yaml in current directory or parent)
// 3. User config (~/.config/taskweave/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Project config takes precedence over the user config.
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "CLAUDE_CODE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("defaults.mode", cfg.Defaults.Mode)
	v.Set("defaults.max_retries", cfg.Defaults.MaxRetries)
	v.Set("defaults.concurrency_limit", cfg.Defaults.ConcurrencyLimit)
	v.Set("defaults.continue_on_error", cfg.Defaults.ContinueOnError)
	v.Set("workers.definitions", cfg.Workers.Definitions)
	v.Set("workers.default_capacity", cfg.Workers.DefaultCapacity)
	v.Set("timeouts.decompose", cfg.Timeouts.Decompose.String())
	v.Set("timeouts.request", cfg.Timeouts.Request.String())
	v.Set("debug.log_path", cfg.Debug.LogPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")

	v.SetDefault("defaults.mode", "adaptive")
	v.SetDefault("defaults.max_retries", 0)
	v.SetDefault("defaults.concurrency_limit", 0)
	v.SetDefault("defaults.continue_on_error", false)

	v.SetDefault("workers.definitions", "")
	v.SetDefault("workers.default_capacity", 2)

	v.SetDefault("timeouts.decompose", "2m")
	v.SetDefault("timeouts.request", "30s")

	v.SetDefault("debug.log_path", "")
}

// getUserConfigDir returns the XDG config directory for taskweave.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskweave")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskweave")
	}
	return filepath.Join(home, ".config", "taskweave")
}

// findProjectConfig searches for .taskweave.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".taskweave.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Defaults: DefaultsConfig{
			Mode: "adaptive",
		},
		Workers: WorkersConfig{
			DefaultCapacity: 2,
		},
		Timeouts: TimeoutsConfig{
			Decompose: 2 * time.Minute,
			Request:   30 * time.Second,
		},
	}
}
