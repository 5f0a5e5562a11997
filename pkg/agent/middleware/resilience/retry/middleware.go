package retry

import (
	"context"
	"fmt"

	"docflow/pkg/agent/llm"
	"docflow/pkg/logx"
)

// ExhaustedError reports that the primary attempts and the fallback attempt all failed.
// Err is the fallback's error, or the last primary error when there is no fallback.
type ExhaustedError struct {
	Attempts int
	Primary  error
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Middleware returns a middleware function that retries the wrapped client according to
// policy and, once its retryable attempts are exhausted, makes exactly one attempt against
// fallback. Fatal outcomes return immediately and never reach the fallback.
func Middleware(policy *Policy, fallback llm.LLMClient, logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("retry")
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				outcome, attempts := policy.Run(ctx, next, req)
				switch outcome.Verdict {
				case VerdictOK:
					return outcome.Response, nil
				case VerdictFatal:
					return llm.CompletionResponse{}, outcome.Err
				}

				if fallback == nil {
					return llm.CompletionResponse{}, &ExhaustedError{Attempts: attempts, Primary: outcome.Err, Err: outcome.Err}
				}

				logger.Warn("%s failed %d times (%s), trying fallback %s",
					next.GetModelName(), attempts, outcome.Reason, fallback.GetModelName())

				resp, err := fallback.Complete(ctx, req)
				final := policy.Classifier(ctx, resp, err)
				if final.Verdict == VerdictOK {
					return final.Response, nil
				}
				return llm.CompletionResponse{}, &ExhaustedError{Attempts: attempts + 1, Primary: outcome.Err, Err: final.Err}
			},
			next.GetModelName,
		)
	}
}
