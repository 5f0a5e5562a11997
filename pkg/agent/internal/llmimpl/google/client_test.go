package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/genai"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

// TestNewGeminiClientWithModel tests client creation with custom model.
func TestNewGeminiClientWithModel(t *testing.T) {
	client := NewGeminiClientWithModel("test-api-key", "gemini-2.5-flash")

	if client == nil {
		t.Fatal("expected client, got nil")
	}
	if got := client.GetModelName(); got != "gemini-2.5-flash" {
		t.Errorf("expected model %q, got %q", "gemini-2.5-flash", got)
	}
}

// TestConvertMessagesToGemini tests message conversion logic.
func TestConvertMessagesToGemini(t *testing.T) {
	tests := []struct {
		name             string
		messages         []llm.CompletionMessage
		expectSystem     string
		expectContentLen int
		errContains      string
	}{
		{
			name:        "empty messages",
			messages:    []llm.CompletionMessage{},
			errContains: "message list cannot be empty",
		},
		{
			name: "system extracted",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleSystem, Content: "You write docs"},
				{Role: llm.RoleSystem, Content: "Be brief"},
				{Role: llm.RoleUser, Content: "Draft it"},
			},
			expectSystem:     "You write docs\n\nBe brief",
			expectContentLen: 1,
		},
		{
			name: "assistant becomes model",
			messages: []llm.CompletionMessage{
				{Role: llm.RoleUser, Content: "Hello"},
				{Role: llm.RoleAssistant, Content: "Hi"},
				{Role: llm.RoleUser, Content: "Continue"},
			},
			expectContentLen: 3,
		},
		{
			name:        "system only",
			messages:    []llm.CompletionMessage{{Role: llm.RoleSystem, Content: "x"}},
			errContains: "at least one non-system message",
		},
		{
			name:        "unknown role",
			messages:    []llm.CompletionMessage{{Role: "tool", Content: "x"}},
			errContains: "unsupported message role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contents, system, err := convertMessagesToGemini(tt.messages)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %v", tt.errContains, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if system != tt.expectSystem {
				t.Errorf("expected system %q, got %q", tt.expectSystem, system)
			}
			if len(contents) != tt.expectContentLen {
				t.Fatalf("expected %d contents, got %d", tt.expectContentLen, len(contents))
			}
			if tt.expectContentLen == 3 && contents[1].Role != "model" {
				t.Errorf("expected model role, got %q", contents[1].Role)
			}
		})
	}
}

func TestGetStopReason(t *testing.T) {
	if got := getStopReason(nil); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonMaxTokens}}}
	if got := getStopReason(resp); got != "max_tokens" {
		t.Errorf("expected max_tokens, got %q", got)
	}
	resp.Candidates[0].FinishReason = genai.FinishReasonStop
	if got := getStopReason(resp); got != "end_turn" {
		t.Errorf("expected end_turn, got %q", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want llmerrors.ErrorType
	}{
		{genai.APIError{Code: 429, Message: "quota"}, llmerrors.ErrorTypeRateLimit},
		{fmt.Errorf("call: %w", genai.APIError{Code: 403, Message: "denied"}), llmerrors.ErrorTypeAuth},
		{genai.APIError{Code: 500, Message: "internal"}, llmerrors.ErrorTypeTransient},
		{context.DeadlineExceeded, llmerrors.ErrorTypeTransient},
		{errors.New("strange"), llmerrors.ErrorTypeUnknown},
	}
	for _, tt := range tests {
		if got := llmerrors.TypeOf(classifyError(tt.err)); got != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.err, tt.want, got)
		}
	}
}
