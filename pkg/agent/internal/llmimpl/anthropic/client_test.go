package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

// TestEnsureAlternation tests the message alternation logic.
func TestEnsureAlternation(t *testing.T) {
	tests := []struct {
		name         string
		input        []llm.CompletionMessage
		expectSystem string
		expectMsgLen int
		expectErr    bool
		errContains  string
	}{
		{
			name:        "empty messages",
			input:       []llm.CompletionMessage{},
			expectErr:   true,
			errContains: "message list cannot be empty",
		},
		{
			name: "system message extracted",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You are a documentation reviewer"},
				{Role: llm.RoleUser, Content: "Review this"},
			},
			expectSystem: "You are a documentation reviewer",
			expectMsgLen: 1,
		},
		{
			name: "multiple system messages concatenated",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "Be precise"},
				{Role: llm.RoleSystem, Content: "And concise"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			expectSystem: "Be precise\n\nAnd concise",
			expectMsgLen: 1,
		},
		{
			name: "proper alternation maintained",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "How are you?"},
			},
			expectMsgLen: 3,
		},
		{
			name: "consecutive user messages merged",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Draft the page"},
				{Role: llm.RoleUser, Content: "Additional context:\nrelease 2.1"},
			},
			expectMsgLen: 1,
		},
		{
			name: "only system messages",
			input: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "alone"},
			},
			expectErr:   true,
			errContains: "at least one non-system message",
		},
		{
			name: "ends with assistant returns error",
			input: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
			},
			expectErr:   true,
			errContains: "last message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			system, msgs, err := ensureAlternation(tt.input)

			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}
			if len(msgs) != tt.expectMsgLen {
				t.Errorf("expected %d messages, got %d", tt.expectMsgLen, len(msgs))
			}
		})
	}
}

// TestValidatePreSend tests the pre-send validation logic.
func TestValidatePreSend(t *testing.T) {
	tests := []struct {
		name        string
		messages    []llm.CompletionMessage
		errContains string
	}{
		{
			name: "valid alternating messages",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "Bye"},
			},
		},
		{
			name:        "system message in array",
			messages:    []llm.CompletionMessage{{Role: llm.RoleSystem, Content: "x"}},
			errContains: "system message found",
		},
		{
			name: "starts with assistant",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "Hello"},
			},
			errContains: "first message must be user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePreSend(tt.messages)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %v", tt.errContains, err)
			}
		})
	}
}

func TestExtractStatusCode(t *testing.T) {
	if got := extractStatusCode("POST failed: status code: 429 Too Many Requests"); got != 429 {
		t.Errorf("expected 429, got %d", got)
	}
	if got := extractStatusCode("HTTP 503 unavailable"); got != 503 {
		t.Errorf("expected 503, got %d", got)
	}
	if got := extractStatusCode("nothing here"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestClassifyError_Fallbacks(t *testing.T) {
	if got := classifyError(errors.New("status code: 401 unauthorized")); got.Type != llmerrors.ErrorTypeAuth {
		t.Errorf("expected auth, got %s", got.Type)
	}
	if got := classifyError(context.Canceled); got.Type != llmerrors.ErrorTypeCancelled {
		t.Errorf("expected cancelled, got %s", got.Type)
	}
	if classifyError(nil) != nil {
		t.Error("nil error should classify to nil")
	}
}

func TestComplete_AgainstServer(t *testing.T) {
	var seen map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&seen)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "Looks "}, {"type": "text", "text": "good."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	client := NewClaudeClient(llm.LLMConfig{APIKey: "k", BaseURL: srv.URL, ModelName: "claude-sonnet-4-5"})
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You review documents."),
		llm.NewUserMessage("Review this."),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Looks good." {
		t.Errorf("expected joined text, got %q", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("expected end_turn, got %q", resp.StopReason)
	}
	if _, ok := seen["system"]; !ok {
		t.Error("expected system prompt in request body")
	}
}

func TestComplete_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`))
	}))
	defer srv.Close()

	client := NewClaudeClient(llm.LLMConfig{APIKey: "k", BaseURL: srv.URL, ModelName: "claude-sonnet-4-5"})
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("x")}))
	if !llmerrors.Is(err, llmerrors.ErrorTypeRateLimit) {
		t.Errorf("expected rate limit error, got %v", err)
	}
}
