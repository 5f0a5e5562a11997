// Package config provides configuration loading, validation, and defaults for docflow.
// It handles JSON and YAML config files and pulls secrets from an encrypted secrets file
// or environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docflow/pkg/logx"
)

// Provider names accepted in completion targets.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Environment variables holding secrets.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvNotifyToken     = "DOCFLOW_NOTIFY_TOKEN"
)

// Defaults.
const (
	DefaultPrimaryModel    = "gpt-4"
	DefaultFallbackModel   = "gpt-3.5-turbo"
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 2000
	DefaultRateLimit       = 50
	DefaultRateWindow      = 60 * time.Second
	DefaultMaxRetries      = 3
	DefaultBaseDelay       = time.Second
	DefaultAttemptTimeout  = 60 * time.Second
	DefaultCacheTTL        = time.Hour
	DefaultRedisAddr       = "localhost:6379"
	DefaultSQLitePath      = "docflow.db"
	DefaultOllamaHost      = "http://localhost:11434"
	DefaultNotifyTimeout   = 5 * time.Second
	DefaultMetricsListen   = ""
	DefaultPatternLimit    = 10
	DefaultCPUThreshold    = 75.0
	DefaultMemoryThreshold = 85.0
	DefaultDurationLimit   = 10 * time.Second
)

// Target names one model on one provider.
type Target struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

func (t Target) String() string {
	return t.Provider + "/" + t.Model
}

// CompletionConfig configures the resilient remote client.
type CompletionConfig struct {
	Primary     Target   `json:"primary" yaml:"primary"`
	Fallback    Target   `json:"fallback" yaml:"fallback"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
	RateLimit   int      `json:"rate_limit" yaml:"rate_limit"` // calls per window
	RateWindow  Duration `json:"rate_window" yaml:"rate_window"`
	MaxRetries  int      `json:"max_retries" yaml:"max_retries"`
	BaseDelay   Duration `json:"base_delay" yaml:"base_delay"`
	Timeout     Duration `json:"timeout" yaml:"timeout"` // per attempt
}

// CacheConfig selects the key/value backend shared by the cache and the stores.
type CacheConfig struct {
	Backend string   `json:"backend" yaml:"backend"`
	TTL     Duration `json:"ttl" yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"-" yaml:"-"`
	DB       int    `json:"db" yaml:"db"`
}

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ErrorsConfig configures fault notification and repeat-failure detection.
type ErrorsConfig struct {
	NotifyURL     string   `json:"notify_url" yaml:"notify_url"`
	NotifyToken   string   `json:"-" yaml:"-"`
	NotifyTimeout Duration `json:"notify_timeout" yaml:"notify_timeout"`
	PatternLimit  int      `json:"pattern_limit" yaml:"pattern_limit"`
}

// PerformanceConfig holds the tracker thresholds.
type PerformanceConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	CPUThreshold    float64  `json:"cpu_threshold" yaml:"cpu_threshold"`
	MemoryThreshold float64  `json:"memory_threshold" yaml:"memory_threshold"`
	DurationLimit   Duration `json:"duration_limit" yaml:"duration_limit"`
}

type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"` // empty disables the /metrics listener
}

type LoggingConfig struct {
	Debug   bool     `json:"debug" yaml:"debug"`
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
}

// Config is the top-level docflow configuration.
type Config struct {
	Completion  *CompletionConfig  `json:"completion" yaml:"completion"`
	Cache       *CacheConfig       `json:"cache" yaml:"cache"`
	Redis       *RedisConfig       `json:"redis" yaml:"redis"`
	SQLite      *SQLiteConfig      `json:"sqlite" yaml:"sqlite"`
	Errors      *ErrorsConfig      `json:"errors" yaml:"errors"`
	Performance *PerformanceConfig `json:"performance" yaml:"performance"`
	Metrics     *MetricsConfig     `json:"metrics" yaml:"metrics"`
	Logging     *LoggingConfig     `json:"logging" yaml:"logging"`
	SecretsFile string             `json:"secrets_file,omitempty" yaml:"secrets_file,omitempty"`
}

func getLogger() *logx.Logger {
	return logx.NewLogger("config")
}

// Load reads the config file at path, applies defaults and environment secrets, and validates.
// An empty path yields the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := loadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyDefaults(cfg)
	if cfg.SecretsFile != "" {
		if err := loadSecretsFile(cfg.SecretsFile); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the default configuration with environment secrets applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML %s: %w", configPath, err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
		}
	}
	return &config, nil
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config) {
	if config.Completion == nil {
		config.Completion = &CompletionConfig{}
	}
	if config.Cache == nil {
		config.Cache = &CacheConfig{}
	}
	if config.Redis == nil {
		config.Redis = &RedisConfig{}
	}
	if config.SQLite == nil {
		config.SQLite = &SQLiteConfig{}
	}
	if config.Errors == nil {
		config.Errors = &ErrorsConfig{}
	}
	if config.Performance == nil {
		config.Performance = &PerformanceConfig{Enabled: true}
	}
	if config.Metrics == nil {
		config.Metrics = &MetricsConfig{Listen: DefaultMetricsListen}
	}
	if config.Logging == nil {
		config.Logging = &LoggingConfig{}
	}

	c := config.Completion
	if c.Primary.Provider == "" {
		c.Primary.Provider = ProviderOpenAI
	}
	if c.Primary.Model == "" {
		c.Primary.Model = DefaultPrimaryModel
	}
	if c.Fallback.Provider == "" {
		c.Fallback.Provider = c.Primary.Provider
	}
	if c.Fallback.Model == "" {
		c.Fallback.Model = DefaultFallbackModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow == 0 {
		c.RateWindow = Duration(DefaultRateWindow)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = Duration(DefaultBaseDelay)
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultAttemptTimeout)
	}

	if config.Cache.Backend == "" {
		config.Cache.Backend = BackendMemory
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if config.Redis.Addr == "" {
		config.Redis.Addr = DefaultRedisAddr
	}
	if config.SQLite.Path == "" {
		config.SQLite.Path = DefaultSQLitePath
	}

	if config.Errors.NotifyTimeout == 0 {
		config.Errors.NotifyTimeout = Duration(DefaultNotifyTimeout)
	}
	if config.Errors.PatternLimit == 0 {
		config.Errors.PatternLimit = DefaultPatternLimit
	}

	p := config.Performance
	if p.CPUThreshold == 0 {
		p.CPUThreshold = DefaultCPUThreshold
	}
	if p.MemoryThreshold == 0 {
		p.MemoryThreshold = DefaultMemoryThreshold
	}
	if p.DurationLimit == 0 {
		p.DurationLimit = Duration(DefaultDurationLimit)
	}
}

// applyEnv copies secrets into the config. Secrets never live in the config file itself.
func applyEnv(config *Config) {
	if pw, err := GetSecret(EnvRedisPassword); err == nil {
		config.Redis.Password = pw
	}
	if token, err := GetSecret(EnvNotifyToken); err == nil {
		config.Errors.NotifyToken = token
	}
	if os.Getenv("DEBUG") == "1" {
		config.Logging.Debug = true
	}
}

func validateTarget(name string, t Target) error {
	switch t.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGoogle:
	default:
		return fmt.Errorf("%s provider %q is not supported", name, t.Provider)
	}
	if strings.TrimSpace(t.Model) == "" {
		return fmt.Errorf("%s model is empty", name)
	}
	return nil
}

func validateConfig(config *Config) error {
	getLogger().Debug("Validating config structure")

	c := config.Completion
	if err := validateTarget("primary", c.Primary); err != nil {
		return err
	}
	if err := validateTarget("fallback", c.Fallback); err != nil {
		return err
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2 (got %v)", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be positive (got %d)", c.MaxTokens)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must be positive (got %d)", c.RateLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative (got %d)", c.MaxRetries)
	}

	switch config.Cache.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("cache backend %q is not supported", config.Cache.Backend)
	}

	if u := config.Errors.NotifyURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("errors notify_url must start with 'http://' or 'https://'")
	}

	p := config.Performance
	if p.CPUThreshold <= 0 || p.CPUThreshold > 100 {
		return fmt.Errorf("cpu_threshold must be in (0, 100] (got %v)", p.CPUThreshold)
	}
	if p.MemoryThreshold <= 0 || p.MemoryThreshold > 100 {
		return fmt.Errorf("memory_threshold must be in (0, 100] (got %v)", p.MemoryThreshold)
	}
	return nil
}

// GetAPIKey returns the credential for provider. For Ollama it returns the host URL.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = DefaultOllamaHost
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("API key not found: %w", err)
	}
	return key, nil
}
