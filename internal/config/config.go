package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for modelwatch.
type Config struct {
	DatasetPath string `mapstructure:"dataset_path"`
	CacheDir    string `mapstructure:"cache_dir"`
	CacheTTL    string `mapstructure:"cache_ttl"`
	NoCache     bool   `mapstructure:"no_cache"`
	DryRun      bool   `mapstructure:"dry_run"`
	LogLevel    string `mapstructure:"log_level"`

	TimeoutMS            int     `mapstructure:"timeout_ms"`
	MaxRetries           int     `mapstructure:"max_retries"`
	RetryBackoffMS       int     `mapstructure:"retry_backoff_ms"`
	MaxConcurrentFetches int     `mapstructure:"max_concurrent_fetches"`
	RateLimitRPS         float64 `mapstructure:"rate_limit_rps"`

	Providers []ProviderSpec `mapstructure:"providers"`
	Publish   PublishConfig  `mapstructure:"publish"`
	GitHub    GitHubConfig   `mapstructure:"github"`
}

// ProviderSpec configures one provider: the external source for one model's
// metadata. Kind selects the adapter; the remaining fields are adapter
// specific.
type ProviderSpec struct {
	ID   string `mapstructure:"id"`
	Kind string `mapstructure:"kind"`

	// API adapters.
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	APIKeyHeader string `mapstructure:"api_key_header"`
	Model        string `mapstructure:"model"`

	// Docs-scrape adapter.
	DocsURL  string `mapstructure:"docs_url"`
	Selector string `mapstructure:"selector"`
	RowLabel string `mapstructure:"row_label"`

	// Static fields a docs page cannot supply.
	DisplayName         string `mapstructure:"display_name"`
	ContextWindowTokens int    `mapstructure:"context_window_tokens"`
}

// PublishConfig selects how the "dataset changed" signal is delivered.
// Mode is one of: git, log, none.
type PublishConfig struct {
	Mode string `mapstructure:"mode"`
}

// GitHubConfig holds GitHub-related settings for the git publisher.
type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	Owner      string `mapstructure:"owner"`
	Repo       string `mapstructure:"repo"`
	BaseBranch string `mapstructure:"base_branch"`
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("dataset_path", "./dataset")
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("no_cache", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("timeout_ms", 10000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_backoff_ms", 500)
	v.SetDefault("max_concurrent_fetches", 4)
	v.SetDefault("rate_limit_rps", 10.0)
	v.SetDefault("publish.mode", "log")
	v.SetDefault("github.base_branch", "main")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/modelwatch")
	}

	// Environment variables
	v.SetEnvPrefix("MODELWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("github.token", "GITHUB_TOKEN")
	_ = v.BindEnv("dataset_path", "MODELWATCH_DATASET_PATH")
	_ = v.BindEnv("publish.mode", "MODELWATCH_PUBLISH_MODE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// An explicit zero in the config file bypasses the defaults, and zero
	// concurrency or zero attempts would stall the run outright.
	if cfg.TimeoutMS <= 0 {
		return nil, fmt.Errorf("timeout_ms must be positive, got %d", cfg.TimeoutMS)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	if cfg.MaxConcurrentFetches < 1 {
		return nil, fmt.Errorf("max_concurrent_fetches must be at least 1, got %d", cfg.MaxConcurrentFetches)
	}
	if cfg.RetryBackoffMS < 0 {
		return nil, fmt.Errorf("retry_backoff_ms must be non-negative, got %d", cfg.RetryBackoffMS)
	}

	// Resolve provider API keys of the form "ENV:VAR_NAME" from the process
	// environment, so config files never carry credentials.
	for i, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "ENV:") {
			cfg.Providers[i].APIKey = os.Getenv(strings.TrimPrefix(p.APIKey, "ENV:"))
		}
	}

	// Resolve dataset path to absolute
	if !filepath.IsAbs(cfg.DatasetPath) {
		abs, err := filepath.Abs(cfg.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("resolving dataset path: %w", err)
		}
		cfg.DatasetPath = abs
	}

	return &cfg, nil
}

// Timeout returns the per-fetch-attempt timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryBackoff returns the base backoff between retry attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// ProviderIDs returns the configured provider IDs in config order.
func (c *Config) ProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		ids = append(ids, p.ID)
	}
	return ids
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/modelwatch-cache"
	}
	return filepath.Join(home, ".cache", "modelwatch")
}
