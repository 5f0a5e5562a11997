package retry

import "docflow/pkg/agent/llm"

// Verdict is the decision an attempt produces.
type Verdict int8

const (
	// VerdictOK means the attempt produced a usable response.
	VerdictOK Verdict = iota
	// VerdictRetryable means another attempt (or the fallback) may succeed.
	VerdictRetryable
	// VerdictFatal means no further attempt can help; the error propagates as-is.
	VerdictFatal
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictRetryable:
		return "retryable"
	case VerdictFatal:
		return "fatal"
	default:
		return "invalid"
	}
}

// Outcome is the explicit result of one attempt. Retry and fallback decisions read the
// Verdict; they never inspect raw errors.
type Outcome struct {
	Verdict  Verdict
	Response llm.CompletionResponse
	Err      error
	Reason   string
}

// OK wraps a successful response.
func OK(resp llm.CompletionResponse) Outcome {
	return Outcome{Verdict: VerdictOK, Response: resp}
}

// Retryable wraps a failure that another attempt may fix.
func Retryable(err error, reason string) Outcome {
	return Outcome{Verdict: VerdictRetryable, Err: err, Reason: reason}
}

// Fatal wraps a failure that must propagate immediately.
func Fatal(err error, reason string) Outcome {
	return Outcome{Verdict: VerdictFatal, Err: err, Reason: reason}
}
