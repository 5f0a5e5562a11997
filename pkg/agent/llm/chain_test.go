package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type mockLLMClient struct {
	completeFunc func(context.Context, CompletionRequest) (CompletionResponse, error)
	model        string
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return m.completeFunc(ctx, req)
}

func (m *mockLLMClient) GetModelName() string { return m.model }

func tagMiddleware(tag string, trace *[]string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				*trace = append(*trace, tag)
				resp, err := next.Complete(ctx, req)
				resp.Content = tag + "(" + resp.Content + ")"
				return resp, err
			},
			next.GetModelName,
		)
	}
}

func TestWrapClient(t *testing.T) {
	called := false
	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			called = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string { return "wrapped-model" },
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("hi")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("Complete function was not called")
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %q", resp.Content)
	}
	if client.GetModelName() != "wrapped-model" {
		t.Errorf("expected 'wrapped-model', got %q", client.GetModelName())
	}
}

func TestChainOrder(t *testing.T) {
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{Content: "base"}, nil
		},
		model: "base-model",
	}

	var trace []string
	client := Chain(base, tagMiddleware("a", &trace), tagMiddleware("b", &trace))

	resp, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(trace, ","); got != "a,b" {
		t.Errorf("expected outer-first order a,b; got %s", got)
	}
	if resp.Content != "a(b(base))" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if client.GetModelName() != "base-model" {
		t.Errorf("model name not delegated: %q", client.GetModelName())
	}
}

func TestChainNoMiddleware(t *testing.T) {
	base := &mockLLMClient{model: "m"}
	if Chain(base) != LLMClient(base) {
		t.Error("Chain without middleware should return the base client")
	}
}

func TestChainPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, boom
		},
	}
	var trace []string
	_, err := Chain(base, tagMiddleware("a", &trace)).Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestSystemPrompt(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{
		NewSystemMessage("You are a technical writer."),
		NewUserMessage("Draft a runbook."),
		NewSystemMessage("Answer in markdown."),
	})
	want := "You are a technical writer.\n\nAnswer in markdown."
	if got := req.SystemPrompt(); got != want {
		t.Errorf("SystemPrompt() = %q, want %q", got, want)
	}
	if req.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", req.MaxTokens, DefaultMaxTokens)
	}
}

func TestLLMConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        LLMConfig
		requireKey bool
		wantErr    bool
	}{
		{"valid", LLMConfig{APIKey: "k", ModelName: "gpt-4", MaxTokens: 10, Temperature: 0.5}, true, false},
		{"missing key", LLMConfig{ModelName: "gpt-4", MaxTokens: 10}, true, true},
		{"keyless provider", LLMConfig{ModelName: "llama3", MaxTokens: 10}, false, false},
		{"missing model", LLMConfig{APIKey: "k", MaxTokens: 10}, true, true},
		{"zero tokens", LLMConfig{APIKey: "k", ModelName: "m"}, true, true},
		{"hot temperature", LLMConfig{APIKey: "k", ModelName: "m", MaxTokens: 1, Temperature: 2.5}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.requireKey)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
