package metrics

import (
	"sync"
	"time"
)

// InternalRecorder aggregates per-model usage in memory for status reporting.
type InternalRecorder struct {
	models map[string]*ModelUsage
	mu     sync.RWMutex
}

// ModelUsage is the aggregated usage for one model.
//
//nolint:govet
type ModelUsage struct {
	Model            string        `json:"model"`
	Target           string        `json:"target"`
	Requests         int64         `json:"requests"`
	Failures         int64         `json:"failures"`
	Throttled        int64         `json:"throttled"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalDuration    time.Duration `json:"total_duration"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{models: make(map[string]*ModelUsage)}
}

func (r *InternalRecorder) entry(model string) *ModelUsage {
	usage, ok := r.models[model]
	if !ok {
		usage = &ModelUsage{Model: model}
		r.models[model] = usage
	}
	return usage
}

func (r *InternalRecorder) ObserveRequest(
	model, target string,
	promptTokens, completionTokens int,
	success bool,
	_ string,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := r.entry(model)
	usage.Target = target
	usage.Requests++
	if !success {
		usage.Failures++
	} else {
		usage.PromptTokens += int64(promptTokens)
		usage.CompletionTokens += int64(completionTokens)
	}
	usage.TotalDuration += duration
	usage.LastUpdated = time.Now()
}

func (r *InternalRecorder) IncThrottle(model, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(model).Throttled++
}

// Usage returns a copy of the usage for every model seen so far.
func (r *InternalRecorder) Usage() map[string]ModelUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]ModelUsage, len(r.models))
	for model, usage := range r.models {
		result[model] = *usage
	}
	return result
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*ModelUsage)
}
