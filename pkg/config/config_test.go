package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Completion.Primary.Provider)
	assert.Equal(t, DefaultPrimaryModel, cfg.Completion.Primary.Model)
	assert.Equal(t, DefaultFallbackModel, cfg.Completion.Fallback.Model)
	assert.Equal(t, DefaultMaxRetries, cfg.Completion.MaxRetries)
	assert.Equal(t, DefaultBaseDelay, cfg.Completion.BaseDelay.Std())
	assert.Equal(t, DefaultRateWindow, cfg.Completion.RateWindow.Std())
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL.Std())
	assert.Equal(t, DefaultPatternLimit, cfg.Errors.PatternLimit)
	assert.InDelta(t, DefaultCPUThreshold, cfg.Performance.CPUThreshold, 0.001)
	assert.True(t, cfg.Performance.Enabled)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "docflow.json", `{
		"completion": {
			"primary": {"provider": "anthropic", "model": "claude-sonnet-4-5"},
			"fallback": {"provider": "ollama", "model": "llama3"},
			"rate_limit": 5,
			"base_delay": "250ms",
			"timeout": 30
		},
		"cache": {"backend": "sqlite", "ttl": "10m"},
		"errors": {"notify_url": "https://hooks.example.com/errors"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Completion.Primary.String())
	assert.Equal(t, ProviderOllama, cfg.Completion.Fallback.Provider)
	assert.Equal(t, 5, cfg.Completion.RateLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Completion.BaseDelay.Std())
	assert.Equal(t, 30*time.Second, cfg.Completion.Timeout.Std())
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL.Std())
	assert.Equal(t, DefaultSQLitePath, cfg.SQLite.Path)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "docflow.yaml", `
completion:
  primary:
    provider: google
    model: gemini-2.5-flash
  max_retries: 5
cache:
  backend: redis
redis:
  addr: redis.internal:6379
  db: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, cfg.Completion.Primary.Provider)
	assert.Equal(t, ProviderGoogle, cfg.Completion.Fallback.Provider)
	assert.Equal(t, 5, cfg.Completion.MaxRetries)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	t.Setenv(EnvRedisPassword, "hunter2")
	t.Setenv(EnvNotifyToken, "tok")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "tok", cfg.Errors.NotifyToken)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown provider",
			body: `{"completion": {"primary": {"provider": "mystery", "model": "x"}}}`,
			want: "not supported",
		},
		{
			name: "unknown backend",
			body: `{"cache": {"backend": "memcached"}}`,
			want: "cache backend",
		},
		{
			name: "bad notify url",
			body: `{"errors": {"notify_url": "ftp://example.com"}}`,
			want: "notify_url",
		},
		{
			name: "temperature out of range",
			body: `{"completion": {"temperature": 3.5}}`,
			want: "temperature",
		},
		{
			name: "bad duration",
			body: `{"completion": {"base_delay": "soon"}}`,
			want: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "cfg.json", tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	t.Setenv(EnvAnthropicAPIKey, "")
	t.Setenv(EnvOllamaHost, "")

	key, err := GetAPIKey(ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)

	_, err = GetAPIKey(ProviderAnthropic)
	assert.Error(t, err)

	host, err := GetAPIKey(ProviderOllama)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaHost, host)

	_, err = GetAPIKey("nope")
	assert.Error(t, err)
}
