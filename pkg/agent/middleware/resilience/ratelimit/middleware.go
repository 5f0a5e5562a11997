package ratelimit

import (
	"context"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/middleware/metrics"
)

// Middleware returns a middleware function that rejects calls once the limiter's window is
// full. Rejected calls never reach the wrapped client.
func Middleware(limiter Limiter, recorder metrics.Recorder) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				if err := limiter.Admit(); err != nil {
					recorder.IncThrottle(next.GetModelName(), "rate_limit")
					return llm.CompletionResponse{}, err
				}
				return next.Complete(ctx, req)
			},
			next.GetModelName,
		)
	}
}
