package metrics

import (
	"context"
	"time"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
	"docflow/pkg/logx"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Middleware returns a middleware function that records metrics for every call that reaches
// the wrapped client. target labels which configured endpoint served it ("primary", "fallback").
func Middleware(recorder Recorder, target string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}
	if recorder == nil {
		recorder = Nop()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(model, target, promptTokens, completionTokens, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("LLM Request: model=%s target=%s tokens=%d+%d status=%s duration=%dms",
						model, target, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType labels errors for metrics.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}
	return llmerrors.Classify(err, 0, "").Type.String()
}
