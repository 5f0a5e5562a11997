package agent

import (
	"fmt"
	"time"

	"docflow/pkg/agent/internal/llmimpl/anthropic"
	"docflow/pkg/agent/internal/llmimpl/google"
	"docflow/pkg/agent/internal/llmimpl/ollama"
	"docflow/pkg/agent/internal/llmimpl/openai"
	"docflow/pkg/agent/llm"
	agentmetrics "docflow/pkg/agent/middleware/metrics"
	"docflow/pkg/agent/middleware/resilience/retry"
	"docflow/pkg/config"
	"docflow/pkg/logx"
)

// maxRetryDelay caps the backoff between primary attempts.
const maxRetryDelay = 30 * time.Second

// NewProviderClient creates the raw client for one configured target. The API key is
// retrieved from the environment based on the target's provider.
func NewProviderClient(target config.Target, cc *config.CompletionConfig) (llm.LLMClient, error) {
	apiKey, err := config.GetAPIKey(target.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", target.Provider, err)
	}

	llmCfg := llm.LLMConfig{
		APIKey:      apiKey,
		BaseURL:     target.BaseURL,
		ModelName:   target.Model,
		MaxTokens:   cc.MaxTokens,
		Temperature: float32(cc.Temperature),
	}

	switch target.Provider {
	case config.ProviderOpenAI:
		if err := llmCfg.Validate(true); err != nil {
			return nil, fmt.Errorf("invalid %s target: %w", target, err)
		}
		return openai.NewClient(llmCfg), nil
	case config.ProviderAnthropic:
		if err := llmCfg.Validate(true); err != nil {
			return nil, fmt.Errorf("invalid %s target: %w", target, err)
		}
		return anthropic.NewClaudeClient(llmCfg), nil
	case config.ProviderGoogle:
		if err := llmCfg.Validate(true); err != nil {
			return nil, fmt.Errorf("invalid %s target: %w", target, err)
		}
		return google.NewGeminiClient(llmCfg), nil
	case config.ProviderOllama:
		host := target.BaseURL
		if host == "" {
			host = apiKey
		}
		llmCfg.APIKey = ""
		if err := llmCfg.Validate(false); err != nil {
			return nil, fmt.Errorf("invalid %s target: %w", target, err)
		}
		return ollama.NewOllamaClientWithModel(host, target.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", target.Provider)
	}
}

// NewRemoteClientFromConfig builds the primary and fallback targets from cfg and wraps them
// in the resilience chain. recorder may be nil.
func NewRemoteClientFromConfig(cfg *config.Config, recorder agentmetrics.Recorder) (*RemoteClient, error) {
	cc := cfg.Completion
	if cc == nil {
		return nil, fmt.Errorf("completion config is missing")
	}

	primary, err := NewProviderClient(cc.Primary, cc)
	if err != nil {
		return nil, fmt.Errorf("primary target: %w", err)
	}
	fallback, err := NewProviderClient(cc.Fallback, cc)
	if err != nil {
		return nil, fmt.Errorf("fallback target: %w", err)
	}

	logger := logx.NewLogger("remote-client")
	logger.Info("Completion targets: primary=%s fallback=%s", cc.Primary, cc.Fallback)

	return NewRemoteClient(primary, fallback, RemoteOptions{
		Temperature: float32(cc.Temperature),
		MaxTokens:   cc.MaxTokens,
		RateLimit:   cc.RateLimit,
		RateWindow:  cc.RateWindow.Std(),
		Retry: retry.Config{
			MaxAttempts:   cc.MaxRetries,
			InitialDelay:  cc.BaseDelay.Std(),
			MaxDelay:      maxRetryDelay,
			BackoffFactor: 2.0,
		},
		Timeout:  cc.Timeout.Std(),
		Recorder: recorder,
		Logger:   logger,
	}), nil
}
