package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

func fastPolicy() *Policy {
	return NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}, nil)
}

func failing(calls *atomic.Int32, model string, err error) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls.Add(1)
			return llm.CompletionResponse{}, err
		},
		func() string { return model },
	)
}

func succeeding(calls *atomic.Int32, model, content string) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls.Add(1)
			return llm.CompletionResponse{Content: content}, nil
		},
		func() string { return model },
	)
}

func TestMiddleware_FallbackAfterPrimaryExhausted(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primary := failing(&primaryCalls, "gpt-4", errors.New("503 service unavailable"))
	fallback := succeeding(&fallbackCalls, "gpt-3.5-turbo", "fallback answer")

	client := Middleware(fastPolicy(), fallback, nil)(primary)
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})

	require.NoError(t, err)
	assert.Equal(t, "fallback answer", resp.Content)
	assert.EqualValues(t, 3, primaryCalls.Load())
	assert.EqualValues(t, 1, fallbackCalls.Load())
	assert.EqualValues(t, 4, primaryCalls.Load()+fallbackCalls.Load())
}

func TestMiddleware_FallbackErrorIsFinal(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primaryErr := errors.New("connection reset by peer")
	fallbackErr := errors.New("fallback overloaded")

	client := Middleware(fastPolicy(), failing(&fallbackCalls, "small", fallbackErr), nil)(
		failing(&primaryCalls, "big", primaryErr))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})

	require.Error(t, err)
	assert.ErrorIs(t, err, fallbackErr)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.ErrorIs(t, exhausted.Primary, primaryErr)
	assert.EqualValues(t, 1, fallbackCalls.Load())
}

func TestMiddleware_FatalSkipsFallback(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	auth := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "invalid api key")

	client := Middleware(fastPolicy(), succeeding(&fallbackCalls, "small", "unused"), nil)(
		failing(&primaryCalls, "big", auth))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})

	require.ErrorIs(t, err, auth)
	assert.EqualValues(t, 1, primaryCalls.Load())
	assert.Zero(t, fallbackCalls.Load())
}

func TestMiddleware_NoFallback(t *testing.T) {
	var calls atomic.Int32
	cause := errors.New("connection reset by peer")

	client := Middleware(fastPolicy(), nil, nil)(failing(&calls, "big", cause))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, cause)
}

func TestMiddleware_PrimarySuccessNeverTouchesFallback(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	client := Middleware(fastPolicy(), succeeding(&fallbackCalls, "small", "no"), nil)(
		succeeding(&primaryCalls, "big", "yes"))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.Content)
	assert.EqualValues(t, 1, primaryCalls.Load())
	assert.Zero(t, fallbackCalls.Load())
	assert.Equal(t, "big", client.GetModelName())
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "ok", VerdictOK.String())
	assert.Equal(t, "retryable", VerdictRetryable.String())
	assert.Equal(t, "fatal", VerdictFatal.String())
	assert.Equal(t, "invalid", Verdict(9).String())
}
