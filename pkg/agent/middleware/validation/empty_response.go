// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
	"docflow/pkg/logx"
)

// maxLoggedMessage bounds how much of each prompt message is logged for an empty response.
const maxLoggedMessage = 2000

// EmptyResponseMiddleware turns whitespace-only completions into ErrorTypeEmptyResponse
// errors so the retry layer treats them like any other retryable failure.
func EmptyResponseMiddleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("empty-response-validator")
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}
				if strings.TrimSpace(resp.Content) != "" {
					return resp, nil
				}

				logEmptyResponse(logger, next.GetModelName(), req, resp)
				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"completion returned no content (stop reason: "+resp.StopReason+")",
				)
			},
			next.GetModelName,
		)
	}
}

func logEmptyResponse(logger *logx.Logger, model string, req llm.CompletionRequest, resp llm.CompletionResponse) {
	logger.Warn("Empty response from %s (stop reason %q, %d messages, max_tokens=%d)",
		model, resp.StopReason, len(req.Messages), req.MaxTokens)

	if !logx.IsDebugEnabledForDomain("llm") {
		return
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		logx.Debug(context.Background(), "llm", "message [%d] role=%s content=%s",
			i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedMessage))
	}
}
