package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

func newTestServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestNewClientWithModel tests client creation with custom model.
func TestNewClientWithModel(t *testing.T) {
	client := NewClientWithModel("test-api-key", "gpt-4")
	if client == nil {
		t.Fatal("expected client, got nil")
	}
	if got := client.GetModelName(); got != "gpt-4" {
		t.Errorf("expected model %q, got %q", "gpt-4", got)
	}
}

func TestComplete_Success(t *testing.T) {
	var seen map[string]any
	srv := newTestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1,
		"model": "gpt-4",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Reviewed."}, "finish_reason": "stop"}]
	}`, &seen)

	client := NewClient(llm.LLMConfig{APIKey: "k", BaseURL: srv.URL, ModelName: "gpt-4"})
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("You review documents."),
		llm.NewUserMessage("Review this."),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Reviewed." {
		t.Errorf("expected content %q, got %q", "Reviewed.", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("expected stop reason end_turn, got %q", resp.StopReason)
	}
	if seen["model"] != "gpt-4" {
		t.Errorf("expected model gpt-4 in request, got %v", seen["model"])
	}
	msgs, ok := seen["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected 2 messages in request, got %v", seen["messages"])
	}
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   llmerrors.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit},
		{"unauthorized", http.StatusUnauthorized, llmerrors.ErrorTypeAuth},
		{"bad request", http.StatusBadRequest, llmerrors.ErrorTypeBadPrompt},
		{"server error", http.StatusInternalServerError, llmerrors.ErrorTypeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, `{"error": {"message": "nope", "type": "x"}}`, nil)
			client := NewClient(llm.LLMConfig{APIKey: "k", BaseURL: srv.URL, ModelName: "gpt-4"})

			_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("x")}))
			if err == nil {
				t.Fatal("expected error")
			}
			if got := llmerrors.TypeOf(err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4", "choices": []}`, nil)
	client := NewClient(llm.LLMConfig{APIKey: "k", BaseURL: srv.URL, ModelName: "gpt-4"})

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("x")}))
	if !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestStopReason(t *testing.T) {
	if stopReason("length") != "max_tokens" {
		t.Error("length should map to max_tokens")
	}
	if stopReason("content_filter") != "content_filter" {
		t.Error("unknown reasons pass through")
	}
}
