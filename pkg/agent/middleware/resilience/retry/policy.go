// Package retry provides bounded retry with exponential backoff and a single fallback
// attempt for resilient completion calls.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"docflow/pkg/agent/llm"
	"docflow/pkg/agent/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Delay before the second attempt
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between attempts
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add +/-10% jitter
}

// DefaultConfig waits 1s then 2s between three attempts.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        false,
}

// Classifier turns the result of one attempt into an Outcome. ctx is the caller's context,
// not the per-attempt one, so a cancelled caller is distinguishable from an attempt timeout.
type Classifier func(ctx context.Context, resp llm.CompletionResponse, err error) Outcome

// Classify is the default classifier.
//
//	err == nil                     -> OK
//	caller context done            -> Fatal
//	auth / bad prompt / cancelled  -> Fatal
//	everything else                -> Retryable
func Classify(ctx context.Context, resp llm.CompletionResponse, err error) Outcome {
	if err == nil {
		return OK(resp)
	}
	if ctx.Err() != nil {
		return Fatal(err, "caller cancelled")
	}

	classified := llmerrors.Classify(err, 0, "")
	if !classified.IsRetryable() {
		return Fatal(err, classified.Type.String())
	}
	return Retryable(err, classified.Type.String())
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = Classify
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before the given attempt number (1-based).
// Attempt 2 waits InitialDelay, attempt 3 waits InitialDelay*factor, and so on.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))

	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitterFactor := (2*time.Now().UnixNano()%2 - 1) // -1 or 1
		jitter := time.Duration(float64(delay) * 0.1 * float64(jitterFactor))
		delay += jitter
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

// Run performs up to MaxAttempts attempts against client and returns the last outcome with
// the number of attempts made. It stops early on OK or Fatal. Backoff sleeps honour ctx.
func (p *Policy) Run(ctx context.Context, client llm.LLMClient, req llm.CompletionRequest) (Outcome, int) {
	var last Outcome
	attempts := 0

	for attempt := 1; attempt <= p.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.CalculateDelay(attempt)); err != nil {
				return Fatal(fmt.Errorf("retry cancelled: %w", err), "caller cancelled"), attempts
			}
		}

		attempts++
		resp, err := client.Complete(ctx, req)
		last = p.Classifier(ctx, resp, err)
		if last.Verdict != VerdictRetryable {
			return last, attempts
		}
	}
	return last, attempts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
