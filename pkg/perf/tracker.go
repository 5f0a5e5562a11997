// Package perf tracks wall-clock duration and resource usage per named operation and
// reports threshold breaches as warnings.
package perf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docflow/pkg/kv"
	"docflow/pkg/logx"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MetricsTTL is how long finished operations stay in the metrics store.
const MetricsTTL = 24 * time.Hour

// MetricsPrefix keys persisted operation metrics.
const MetricsPrefix = "metrics:"

var (
	// ErrUnknownOperation is returned by End for an id that was never started or already ended.
	ErrUnknownOperation = errors.New("unknown operation ID")
	// ErrDuplicateOperation is returned by Start for an id that is still running.
	ErrDuplicateOperation = errors.New("operation already started")
)

// Thresholds above which a finished operation carries a warning.
type Thresholds struct {
	CPUPercent    float64
	MemoryPercent float64
	Duration      time.Duration
}

// DefaultThresholds are 75% CPU, 85% system memory and 10 seconds.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 75, MemoryPercent: 85, Duration: 10 * time.Second}
}

// Recorder observes finished operations. metrics.Recorder satisfies it.
type Recorder interface {
	ObserveOperation(kind, status string, duration time.Duration)
}

// Metrics describes a finished operation.
type Metrics struct {
	ID                  string    `json:"id"`
	Kind                string    `json:"type"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	Duration            float64   `json:"duration"`
	MemoryStart         uint64    `json:"memory_start"`
	MemoryEnd           uint64    `json:"memory_end"`
	MemoryUsed          int64     `json:"memory_used"`
	CPUStart            float64   `json:"cpu_start"`
	CPUEnd              float64   `json:"cpu_end"`
	CPUAverage          float64   `json:"cpu_average"`
	ThreadCount         int32     `json:"thread_count"`
	ThreadCountEnd      int32     `json:"thread_count_end"`
	SystemMemoryPercent float64   `json:"system_memory_percent"`
	Status              string    `json:"status"`
	Warnings            []string  `json:"warnings,omitempty"`
}

type operation struct {
	kind  string
	start time.Time
	begin Sample
}

// Tracker measures operations. It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	ops        map[string]*operation
	store      kv.Store
	sampler    Sampler
	recorder   Recorder
	thresholds Thresholds
	now        func() time.Time
	logger     *logx.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSampler overrides the gopsutil process sampler.
func WithSampler(s Sampler) Option {
	return func(t *Tracker) { t.sampler = s }
}

// WithRecorder reports finished operations to r.
func WithRecorder(r Recorder) Option {
	return func(t *Tracker) { t.recorder = r }
}

// WithThresholds overrides DefaultThresholds.
func WithThresholds(th Thresholds) Option {
	return func(t *Tracker) { t.thresholds = th }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker persisting finished operations to store (may be nil).
func NewTracker(store kv.Store, opts ...Option) *Tracker {
	t := &Tracker{
		ops:        make(map[string]*operation),
		store:      store,
		sampler:    NewProcessSampler(),
		thresholds: DefaultThresholds(),
		now:        time.Now,
		logger:     logx.NewLogger("perf"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewID returns a unique operation id for kind.
func NewID(kind string) string {
	return kind + "_" + uuid.NewString()
}

// Start begins tracking id. A sampling failure is logged and leaves zero readings.
func (t *Tracker) Start(ctx context.Context, id, kind string) error {
	begin, err := t.sampler.Process(ctx)
	if err != nil {
		t.logger.Warn("Failed to sample resources for %s: %v", id, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.ops[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, id)
	}
	t.ops[id] = &operation{kind: kind, start: t.now(), begin: begin}
	return nil
}

// Running returns the number of operations started but not ended.
func (t *Tracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// End finishes id and returns its metrics. The operation leaves the in-process table
// whether or not the metrics store accepts the record.
func (t *Tracker) End(ctx context.Context, id, status string) (Metrics, error) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if ok {
		delete(t.ops, id)
	}
	t.mu.Unlock()
	if !ok {
		return Metrics{}, fmt.Errorf("%w: %s", ErrUnknownOperation, id)
	}

	end := t.now()
	final, err := t.sampler.Process(ctx)
	if err != nil {
		t.logger.Warn("Failed to sample resources for %s: %v", id, err)
	}

	duration := end.Sub(op.start)
	if duration < 0 {
		duration = 0
	}

	m := Metrics{
		ID:             id,
		Kind:           op.kind,
		StartTime:      op.start,
		EndTime:        end,
		Duration:       duration.Seconds(),
		MemoryStart:    op.begin.RSS,
		MemoryEnd:      final.RSS,
		MemoryUsed:     int64(final.RSS) - int64(op.begin.RSS), //nolint:gosec // RSS fits in int64
		CPUStart:       op.begin.CPUPercent,
		CPUEnd:         final.CPUPercent,
		CPUAverage:     (op.begin.CPUPercent + final.CPUPercent) / 2,
		ThreadCount:    op.begin.Threads,
		ThreadCountEnd: final.Threads,
		Status:         status,
	}

	if pct, err := t.sampler.SystemMemoryPercent(ctx); err != nil {
		t.logger.Warn("Failed to read system memory for %s: %v", id, err)
	} else {
		m.SystemMemoryPercent = pct
	}

	m.Warnings = t.checkThresholds(m, duration)
	if len(m.Warnings) > 0 {
		t.logger.Warn("Performance warnings for %s: %v", m.Kind, m.Warnings)
	}

	if t.recorder != nil {
		t.recorder.ObserveOperation(m.Kind, status, duration)
	}
	t.persist(ctx, m)

	return m, nil
}

func (t *Tracker) checkThresholds(m Metrics, duration time.Duration) []string {
	var warnings []string
	if m.CPUAverage > t.thresholds.CPUPercent {
		warnings = append(warnings, fmt.Sprintf("High CPU usage: %.1f%%", m.CPUAverage))
	}
	if m.SystemMemoryPercent > t.thresholds.MemoryPercent {
		warnings = append(warnings, fmt.Sprintf("High memory usage: %.1f%%", m.SystemMemoryPercent))
	}
	if duration > t.thresholds.Duration {
		warnings = append(warnings, fmt.Sprintf("Long operation duration: %.2f seconds", m.Duration))
	}
	return warnings
}

func (t *Tracker) persist(ctx context.Context, m Metrics) {
	if t.store == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.logger.Warn("Failed to encode metrics for %s: %v", m.ID, err)
		return
	}
	if err := t.store.Set(ctx, MetricsPrefix+m.ID, data, MetricsTTL); err != nil {
		t.logger.Warn("Failed to store metrics for %s: %v", m.ID, err)
	}
}

// Track runs fn as an operation of kind. The operation ends with status error when fn
// returns an error or panics.
func (t *Tracker) Track(ctx context.Context, kind string, fn func(ctx context.Context) error) (err error) {
	id := NewID(kind)
	if serr := t.Start(ctx, id, kind); serr != nil {
		return serr
	}

	status := StatusError
	defer func() {
		if _, eerr := t.End(context.WithoutCancel(ctx), id, status); eerr != nil {
			t.logger.Warn("Failed to end operation %s: %v", id, eerr)
		}
	}()

	if err = fn(ctx); err == nil {
		status = StatusSuccess
	}
	return err
}

// Summary aggregates stored operations.
type Summary struct {
	TotalOperations int      `json:"total_operations"`
	AverageDuration float64  `json:"average_duration"`
	AverageMemory   float64  `json:"average_memory"`
	AverageCPU      float64  `json:"average_cpu"`
	SuccessRate     float64  `json:"success_rate"`
	Warnings        []string `json:"warnings"`
}

// Summary scans the metrics store, optionally filtered by kind ("" for all).
func (t *Tracker) Summary(ctx context.Context, kind string) (Summary, error) {
	var sum Summary
	if t.store == nil {
		return sum, nil
	}

	keys, err := t.store.Keys(ctx, MetricsPrefix+"*")
	if err != nil {
		return sum, fmt.Errorf("failed to list metrics: %w", err)
	}

	var durations, memory, cpu float64
	successes := 0
	seen := make(map[string]struct{})
	for _, key := range keys {
		data, err := t.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var m Metrics
		if err := json.Unmarshal(data, &m); err != nil {
			t.logger.Warn("Skipping unreadable metrics %s: %v", key, err)
			continue
		}
		if kind != "" && m.Kind != kind {
			continue
		}
		sum.TotalOperations++
		durations += m.Duration
		memory += float64(m.MemoryUsed)
		cpu += m.CPUAverage
		if m.Status == StatusSuccess {
			successes++
		}
		for _, w := range m.Warnings {
			if _, dup := seen[w]; !dup {
				seen[w] = struct{}{}
				sum.Warnings = append(sum.Warnings, w)
			}
		}
	}

	if sum.TotalOperations > 0 {
		n := float64(sum.TotalOperations)
		sum.AverageDuration = durations / n
		sum.AverageMemory = memory / n
		sum.AverageCPU = cpu / n
		sum.SuccessRate = float64(successes) / n
	}
	return sum, nil
}
