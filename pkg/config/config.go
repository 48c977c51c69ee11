// Package config loads the engine configuration from an optional YAML
// file with environment overrides. Secrets (LLM API key, database
// passwords) are environment-only and never round-trip through YAML.
package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Retry    RetryConfig    `yaml:"retry"`
	Metadata MetadataConfig `yaml:"metadata"`

	// ConnectionsFile points at the file-tier connection definitions.
	ConnectionsFile string `yaml:"connections_file" env:"CONNECTIONS_FILE" env-default:""`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr" env:"SERVER_ADDR" env-default:":8080"`
	Env             string `yaml:"env" env:"APP_ENV" env-default:"development"`
	LogLevel        string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ShutdownSeconds int    `yaml:"shutdown_seconds" env:"SHUTDOWN_SECONDS" env-default:"15"`
}

// LLMConfig configures the provider gateway. The API key is env-only.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY" env-default:""`
	Temperature float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`

	// MaxCostUSD is the hard ceiling enforced by the cost ledger.
	MaxCostUSD float64 `yaml:"max_cost_usd" env:"LLM_MAX_COST_USD" env-default:"10.0"`

	// PricePerK overrides the built-in per-1k-token price table, keyed
	// by model name prefix.
	PricePerK map[string]float64 `yaml:"price_per_k"`
	// FallbackPricePerK prices models absent from the table.
	FallbackPricePerK float64 `yaml:"fallback_price_per_k" env:"LLM_FALLBACK_PRICE_PER_K" env-default:"0"`
}

// RetryConfig tunes the backoff policy for provider calls.
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	InitialWaitMS int `yaml:"initial_wait_ms" env:"RETRY_INITIAL_WAIT_MS" env-default:"1000"`
	MaxWaitMS     int `yaml:"max_wait_ms" env:"RETRY_MAX_WAIT_MS" env-default:"10000"`
}

// MetadataConfig configures document persistence.
type MetadataConfig struct {
	OutputDir string `yaml:"output_dir" env:"METADATA_OUTPUT_DIR" env-default:"./metadata"`
}

// Load reads configuration from path (optional) and the environment.
// A missing file falls back to environment-only configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from environment: %w", err)
	}
	return &cfg, nil
}

// LLMEnabled reports whether a provider is usable: a key is present or
// the base URL points at a keyless local endpoint.
func (c *Config) LLMEnabled() bool {
	return c.LLM.APIKey != "" || c.LLM.BaseURL != ""
}
