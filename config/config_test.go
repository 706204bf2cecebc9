package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_BACKENDS", "LLM_PROBE_TIMEOUT", "LLM_REQUEST_TIMEOUT", "LLM_CORRECTION_RETRIES",
		"OLLAMA_BASE_URL", "OLLAMA_MODEL", "OPENAI_API_KEY", "OPENAI_MODEL",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL",
		"LOG_LEVEL", "LOG_FORMAT", "METRICS_ENABLED",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama", "openai", "anthropic"}, cfg.Backends)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0, cfg.CorrectionRetries)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3.2", cfg.Ollama.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Anthropic.Model)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BACKENDS", " Anthropic , lorem ,")
	t.Setenv("LLM_PROBE_TIMEOUT", "500ms")
	t.Setenv("LLM_CORRECTION_RETRIES", "2")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("OLLAMA_MODEL", "mistral")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("METRICS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "lorem"}, cfg.Backends)
	assert.Equal(t, 500*time.Millisecond, cfg.ProbeTimeout)
	assert.Equal(t, 2, cfg.CorrectionRetries)
	assert.Equal(t, "sk-test", cfg.Anthropic.APIKey)
	assert.Equal(t, "mistral", cfg.Ollama.Model)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_MODEL", "from-env")
	t.Setenv("OLLAMA_MODEL", "kept-from-env")

	path := filepath.Join(t.TempDir(), "llm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backends: [lorem, openai]
request_timeout: 30s
openai:
  model: from-yaml
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lorem", "openai"}, cfg.Backends)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "from-yaml", cfg.OpenAI.Model)
	assert.Equal(t, "kept-from-env", cfg.Ollama.Model)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"LLM_BACKENDS": "ollama,bard"}, `unknown backend "bard"`},
		{"duplicate backend", map[string]string{"LLM_BACKENDS": "ollama,OLLAMA"}, "listed more than once"},
		{"empty list", map[string]string{"LLM_BACKENDS": " , "}, "at least one backend"},
		{"bad duration", map[string]string{"LLM_PROBE_TIMEOUT": "soon"}, "failed to parse environment"},
		{"zero timeout", map[string]string{"LLM_REQUEST_TIMEOUT": "0s"}, "request timeout must be positive"},
		{"negative retries", map[string]string{"LLM_CORRECTION_RETRIES": "-1"}, "must not be negative"},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestIsSupportedBackend(t *testing.T) {
	for _, name := range []string{BackendOllama, BackendOpenAI, BackendAnthropic, BackendLorem} {
		assert.True(t, IsSupportedBackend(name), name)
	}
	assert.False(t, IsSupportedBackend("Ollama"))
	assert.False(t, IsSupportedBackend(""))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel), "debug should be enabled")

	logger, err = NewLogger(LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel), "info should be disabled at warn")

	_, err = NewLogger(LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
}
