// Package config loads backend priority, credentials and logging settings
// from the environment, an optional .env file, and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names understood by the client constructor.
const (
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendLorem     = "lorem"
)

var supportedBackends = []string{BackendOllama, BackendOpenAI, BackendAnthropic, BackendLorem}

// Config is the resolved configuration handed to the client constructor.
type Config struct {
	// Backends lists backend names in priority order.
	Backends          []string      `env:"LLM_BACKENDS" envSeparator:"," envDefault:"ollama,openai,anthropic" yaml:"backends"`
	ProbeTimeout      time.Duration `env:"LLM_PROBE_TIMEOUT" envDefault:"2s" yaml:"probe_timeout"`
	RequestTimeout    time.Duration `env:"LLM_REQUEST_TIMEOUT" envDefault:"120s" yaml:"request_timeout"`
	CorrectionRetries int           `env:"LLM_CORRECTION_RETRIES" envDefault:"0" yaml:"correction_retries"`

	Ollama    OllamaConfig    `yaml:"ollama"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// OllamaConfig holds the local Ollama server settings.
type OllamaConfig struct {
	BaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434" yaml:"base_url"`
	Model   string `env:"OLLAMA_MODEL" envDefault:"llama3.2" yaml:"model"`
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	APIKey string `env:"OPENAI_API_KEY" yaml:"api_key"`
	Model  string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini" yaml:"model"`
}

// AnthropicConfig holds Anthropic settings.
type AnthropicConfig struct {
	APIKey  string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model   string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-sonnet-20241022" yaml:"model"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" yaml:"base_url"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info" yaml:"level"`
	Format string `env:"LOG_FORMAT" envDefault:"json" yaml:"format"` // json or console
}

// MetricsConfig toggles Prometheus collectors.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"false" yaml:"enabled"`
}

// Load builds a Config. A .env file in the working directory is loaded first
// (variables already set win), then the environment is parsed, then the YAML
// file at path, if any, overrides the keys it sets.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	names := make([]string, 0, len(c.Backends))
	for _, name := range c.Backends {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names = append(names, name)
		}
	}
	c.Backends = names
}

// Validate checks the backend list and timeouts.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be listed in LLM_BACKENDS")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, name := range c.Backends {
		if !IsSupportedBackend(name) {
			return fmt.Errorf("unknown backend %q (supported: %s)", name, strings.Join(supportedBackends, ", "))
		}
		if seen[name] {
			return fmt.Errorf("backend %q listed more than once", name)
		}
		seen[name] = true
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.CorrectionRetries < 0 {
		return fmt.Errorf("correction retries must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// IsSupportedBackend reports whether name is a backend the client can build.
func IsSupportedBackend(name string) bool {
	for _, s := range supportedBackends {
		if s == name {
			return true
		}
	}
	return false
}
