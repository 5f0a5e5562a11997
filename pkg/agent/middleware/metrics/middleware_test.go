package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

func stubClient(content string, err error) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: content}, err
		},
		func() string { return "gpt-4" },
	)
}

func TestMiddleware_RecordsSuccess(t *testing.T) {
	internal := NewInternalRecorder()
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)

	client := Middleware(Multi(internal, prom), "primary", nil, nil)(stubClient("Rotate the keys monthly.", nil))
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("How often should keys rotate?")})

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Rotate the keys monthly.", resp.Content)

	usage := internal.Usage()["gpt-4"]
	assert.EqualValues(t, 1, usage.Requests)
	assert.Zero(t, usage.Failures)
	assert.Equal(t, "primary", usage.Target)
	assert.Positive(t, usage.PromptTokens)
	assert.Positive(t, usage.CompletionTokens)

	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("gpt-4", "primary", "success", "")), 0)
}

func TestMiddleware_RecordsFailure(t *testing.T) {
	internal := NewInternalRecorder()
	reg := prometheus.NewRegistry()
	prom := NewPrometheusRecorder(reg)
	cause := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "slow down")

	client := Middleware(Multi(internal, prom), "fallback", nil, nil)(stubClient("", cause))
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.ErrorIs(t, err, cause)

	usage := internal.Usage()["gpt-4"]
	assert.EqualValues(t, 1, usage.Failures)
	assert.Zero(t, usage.PromptTokens)
	assert.InDelta(t, 1, testutil.ToFloat64(prom.requestsTotal.WithLabelValues("gpt-4", "fallback", "error", "rate_limit")), 0)
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, "", getErrorType(nil))
	assert.Equal(t, "cancelled", getErrorType(context.Canceled))
	assert.Equal(t, "transient", getErrorType(context.DeadlineExceeded))
	assert.Equal(t, "unknown", getErrorType(errors.New("odd")))
}

func TestInternalRecorder_ThrottleAndReset(t *testing.T) {
	r := NewInternalRecorder()
	r.IncThrottle("gpt-4", "rate_limit")
	r.ObserveRequest("gpt-4", "primary", 10, 5, true, "", time.Second)

	usage := r.Usage()["gpt-4"]
	assert.EqualValues(t, 1, usage.Throttled)
	assert.Equal(t, time.Second, usage.TotalDuration)

	r.Reset()
	assert.Empty(t, r.Usage())
}

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))
	assert.Positive(t, CountTokens("The quick brown fox jumps over the lazy dog."))
}
