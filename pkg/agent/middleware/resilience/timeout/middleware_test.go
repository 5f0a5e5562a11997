package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docflow/pkg/agent/llm"
)

func blockingClient() llm.LLMClient {
	return llm.WrapClient(
		func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			<-ctx.Done()
			return llm.CompletionResponse{}, ctx.Err()
		},
		func() string { return "slow-model" },
	)
}

func TestMiddleware_TimesOut(t *testing.T) {
	client := Middleware(20 * time.Millisecond)(blockingClient())

	start := time.Now()
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "slow-model", client.GetModelName())
}

func TestMiddleware_PassesThroughFastCalls(t *testing.T) {
	fast := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			return llm.CompletionResponse{Content: "done"}, nil
		},
		func() string { return "fast" },
	)
	resp, err := Middleware(time.Second)(fast).Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
}

type namedClient struct{ name string }

func (n *namedClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{}, nil
}

func (n *namedClient) GetModelName() string { return n.name }

func TestMiddleware_ZeroDisables(t *testing.T) {
	base := &namedClient{name: "m"}
	assert.Same(t, base, Middleware(0)(base))
}
