package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

// =============================================================================
// Classifier tests
// =============================================================================

func TestClassify_Success(t *testing.T) {
	o := Classify(context.Background(), llm.CompletionResponse{Content: "ok"}, nil)
	if o.Verdict != VerdictOK || o.Response.Content != "ok" {
		t.Errorf("expected OK with content, got %+v", o)
	}
}

func TestClassify_CallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := Classify(ctx, llm.CompletionResponse{}, fmt.Errorf("call: %w", context.Canceled))
	if o.Verdict != VerdictFatal {
		t.Errorf("expected Fatal for caller cancellation, got %s", o.Verdict)
	}
}

func TestClassify_AttemptTimeoutIsRetryable(t *testing.T) {
	// Per-attempt timeouts surface DeadlineExceeded while the caller's context is still live.
	o := Classify(context.Background(), llm.CompletionResponse{}, fmt.Errorf("http: %w", context.DeadlineExceeded))
	if o.Verdict != VerdictRetryable {
		t.Errorf("expected Retryable for attempt timeout, got %s", o.Verdict)
	}
}

func TestClassify_AuthAndBadPromptAreFatal(t *testing.T) {
	for _, typ := range []llmerrors.ErrorType{llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeBadPrompt} {
		o := Classify(context.Background(), llm.CompletionResponse{}, llmerrors.NewError(typ, "nope"))
		if o.Verdict != VerdictFatal {
			t.Errorf("%s: expected Fatal, got %s", typ, o.Verdict)
		}
		if o.Reason != typ.String() {
			t.Errorf("%s: reason = %q", typ, o.Reason)
		}
	}
}

func TestClassify_RateLimitAndUnknownAreRetryable(t *testing.T) {
	errs := []error{
		llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "slow down"),
		llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty"),
		errors.New("something unexpected"),
	}
	for _, err := range errs {
		if o := Classify(context.Background(), llm.CompletionResponse{}, err); o.Verdict != VerdictRetryable {
			t.Errorf("%v: expected Retryable, got %s", err, o.Verdict)
		}
	}
}

// =============================================================================
// Policy tests
// =============================================================================

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 4, InitialDelay: time.Second, BackoffFactor: 2}, nil)

	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.CalculateDelay(i + 1); got != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestCalculateDelay_Capped(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 10, InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 2}, nil)
	if got := p.CalculateDelay(8); got != 3*time.Second {
		t.Errorf("delay = %v, want cap of 3s", got)
	}
}

func TestCalculateDelay_Jitter(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Second, BackoffFactor: 2, Jitter: true}, nil)
	got := p.CalculateDelay(2)
	if got < 900*time.Millisecond || got > 1100*time.Millisecond {
		t.Errorf("jittered delay %v outside +/-10%%", got)
	}
}

func countingClient(calls *atomic.Int32, results ...error) llm.LLMClient {
	return llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			n := int(calls.Add(1)) - 1
			if n < len(results) && results[n] != nil {
				return llm.CompletionResponse{}, results[n]
			}
			return llm.CompletionResponse{Content: fmt.Sprintf("attempt %d", n+1)}, nil
		},
		func() string { return "primary-model" },
	)
}

func TestRun_StopsOnSuccess(t *testing.T) {
	var calls atomic.Int32
	transient := errors.New("connection reset by peer")
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil)

	o, attempts := p.Run(context.Background(), countingClient(&calls, transient), llm.CompletionRequest{})
	if o.Verdict != VerdictOK || attempts != 2 {
		t.Fatalf("got %s after %d attempts, want ok after 2", o.Verdict, attempts)
	}
	if o.Response.Content != "attempt 2" {
		t.Errorf("content = %q", o.Response.Content)
	}
}

func TestRun_StopsOnFatal(t *testing.T) {
	var calls atomic.Int32
	auth := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key")
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil)

	o, attempts := p.Run(context.Background(), countingClient(&calls, auth, auth, auth), llm.CompletionRequest{})
	if o.Verdict != VerdictFatal || attempts != 1 {
		t.Errorf("got %s after %d attempts, want fatal after 1", o.Verdict, attempts)
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	var calls atomic.Int32
	transient := errors.New("connection reset by peer")
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	o, attempts := p.Run(ctx, countingClient(&calls, transient, transient), llm.CompletionRequest{})
	if o.Verdict != VerdictFatal {
		t.Errorf("expected Fatal after cancellation, got %s", o.Verdict)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if time.Since(start) > time.Second {
		t.Error("backoff sleep did not honour cancellation")
	}
}
