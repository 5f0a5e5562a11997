// Package agent provides the resilient remote completion client and the factory that
// assembles its middleware chain from configuration.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"docflow/pkg/agent/llm"
	agentmetrics "docflow/pkg/agent/middleware/metrics"
	"docflow/pkg/agent/middleware/resilience/ratelimit"
	"docflow/pkg/agent/middleware/resilience/retry"
	"docflow/pkg/agent/middleware/resilience/timeout"
	"docflow/pkg/agent/middleware/validation"
	"docflow/pkg/faults"
	"docflow/pkg/logx"
)

// Target labels used in metrics and logs.
const (
	TargetPrimary  = "primary"
	TargetFallback = "fallback"
)

// Completer is the contract workflow steps depend on.
type Completer interface {
	Call(ctx context.Context, systemPrompt, userMessage string, extra map[string]any) (string, error)
}

// RemoteOptions tunes a RemoteClient. Zero values take the defaults noted per field.
type RemoteOptions struct {
	Temperature float32       // default llm.TemperatureDefault
	MaxTokens   int           // default llm.DefaultMaxTokens
	RateLimit   int           // calls per RateWindow; <= 0 disables limiting
	RateWindow  time.Duration // default 60s
	Retry       retry.Config  // default retry.DefaultConfig
	Timeout     time.Duration // per attempt; <= 0 disables
	Recorder    agentmetrics.Recorder
	Limiter     ratelimit.Limiter // overrides RateLimit/RateWindow
	Logger      *logx.Logger
}

// RemoteClient calls a primary completion target with rate limiting, bounded retry and a
// single fallback attempt.
type RemoteClient struct {
	client      llm.LLMClient
	limiter     ratelimit.Limiter
	temperature float32
	maxTokens   int
	logger      *logx.Logger
}

// NewRemoteClient wraps primary and fallback (may be nil) in the resilience chain:
//
//	ratelimit -> retry(primary, fallback) -> metrics -> empty-response -> timeout -> provider
//
// The rate limiter admits each Call once, before any attempt is made.
func NewRemoteClient(primary, fallback llm.LLMClient, opts RemoteOptions) *RemoteClient {
	if opts.Temperature == 0 {
		opts.Temperature = llm.TemperatureDefault
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig
	}
	if opts.Recorder == nil {
		opts.Recorder = agentmetrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logx.NewLogger("remote-client")
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSlidingWindow(opts.RateLimit, opts.RateWindow)
	}

	var fallbackChain llm.LLMClient
	if fallback != nil {
		fallbackChain = targetChain(fallback, TargetFallback, opts)
	}

	client := llm.Chain(targetChain(primary, TargetPrimary, opts),
		ratelimit.Middleware(limiter, opts.Recorder),
		retry.Middleware(retry.NewPolicy(opts.Retry, nil), fallbackChain, opts.Logger),
	)

	return &RemoteClient{
		client:      client,
		limiter:     limiter,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		logger:      opts.Logger,
	}
}

// targetChain applies the per-target middleware. The outermost layer records which target
// produced a validated response.
func targetChain(raw llm.LLMClient, target string, opts RemoteOptions) llm.LLMClient {
	return llm.Chain(raw,
		servedBy(target),
		agentmetrics.Middleware(opts.Recorder, target, nil, opts.Logger),
		validation.EmptyResponseMiddleware(opts.Logger),
		timeout.Middleware(opts.Timeout),
	)
}

type servedKey struct{}

type served struct {
	target string
	model  string
}

func servedBy(target string) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err == nil {
					if s, ok := ctx.Value(servedKey{}).(*served); ok {
						s.target, s.model = target, next.GetModelName()
					}
				}
				return resp, err //nolint:wrapcheck // pass-through
			},
			next.GetModelName,
		)
	}
}

// Call sends systemPrompt and userMessage, plus extra as an "Additional context" message
// when non-empty, and returns the completion text. Errors are faults tagged
// faults.KindAPIClient, or faults.KindTimeout when an attempt deadline expired.
func (c *RemoteClient) Call(ctx context.Context, systemPrompt, userMessage string, extra map[string]any) (string, error) {
	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(userMessage),
	}
	if len(extra) > 0 {
		messages = append(messages, llm.NewUserMessage("\nAdditional context:\n"+formatContext(extra)))
	}

	req := llm.NewCompletionRequest(messages)
	req.Temperature = c.temperature
	req.MaxTokens = c.maxTokens

	var s served
	start := time.Now()
	resp, err := c.client.Complete(context.WithValue(ctx, servedKey{}, &s), req)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Completion call failed after %.2fs: %v", duration.Seconds(), err)
		return "", tagFault(err)
	}

	c.logger.Info("Completion call successful: target=%s model=%s duration=%.2fs", s.target, s.model, duration.Seconds())
	return resp.Content, nil
}

// Limiter exposes the client's rate limiter for status reporting.
func (c *RemoteClient) Limiter() ratelimit.Limiter {
	return c.limiter
}

func tagFault(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.New(faults.KindTimeout, fmt.Errorf("completion call timed out: %w", err))
	}
	return faults.New(faults.KindAPIClient, fmt.Errorf("completion call failed: %w", err))
}

// formatContext renders extra as sorted "key: value" lines; non-string values are JSON.
func formatContext(extra map[string]any) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		var value string
		switch v := extra[k].(type) {
		case string:
			value = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				value = fmt.Sprintf("%v", v)
			} else {
				value = string(data)
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", k, value)
	}
	return strings.TrimSuffix(b.String(), "\n")
}
