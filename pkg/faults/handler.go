package faults

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docflow/pkg/kv"
	"docflow/pkg/logx"
)

// Retention for persisted records and pattern counters.
const (
	RecordTTL  = 7 * 24 * time.Hour
	PatternTTL = time.Hour

	// DefaultPatternLimit is the per-type count above which a fault is a pattern.
	DefaultPatternLimit = 10

	// RecordPrefix and PatternPrefix key persisted records and pattern counters.
	RecordPrefix  = "error:"
	PatternPrefix = "error_pattern:"
)

// Recorder counts classified faults. metrics.Recorder satisfies it.
type Recorder interface {
	IncFault(category, severity string)
}

// Handler classifies, records and reports faults.
type Handler struct {
	store        kv.Store
	tally        *Tally
	notifier     Notifier
	recorder     Recorder
	patternLimit int
	now          func() time.Time
	logger       *logx.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithNotifier sends HIGH and CRITICAL faults (and those handled WithNotify) to n.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithRecorder counts faults in r.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// WithPatternLimit overrides DefaultPatternLimit.
func WithPatternLimit(limit int) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.patternLimit = limit
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a handler persisting to store (may be nil) and counting in tally.
// A nil tally gets a fresh one.
func NewHandler(store kv.Store, tally *Tally, opts ...Option) *Handler {
	if tally == nil {
		tally = NewTally()
	}
	h := &Handler{
		store:        store,
		tally:        tally,
		patternLimit: DefaultPatternLimit,
		now:          time.Now,
		logger:       logx.NewLogger("faults"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tally returns the handler's tally.
func (h *Handler) Tally() *Tally {
	return h.tally
}

type handleOptions struct {
	severity Severity
	notify   bool
}

// HandleOption adjusts a single Handle call.
type HandleOption func(*handleOptions)

// WithSeverity sets the initial severity (default MEDIUM).
func WithSeverity(s Severity) HandleOption {
	return func(o *handleOptions) {
		if s.rank() >= 0 {
			o.severity = s
		}
	}
}

// WithNotify requests notification regardless of severity.
func WithNotify() HandleOption {
	return func(o *handleOptions) { o.notify = true }
}

// Handle classifies err and returns its record. It never fails: store, notifier and
// logging problems are logged and swallowed, and panics are recovered.
func (h *Handler) Handle(ctx context.Context, err error, fctx map[string]any, opts ...HandleOption) (rec Record) {
	defer func() {
		if r := recover(); r != nil {
			if rec.ErrorType == "" {
				rec = Record{
					Timestamp: h.now(),
					ErrorType: fmt.Sprintf("%T", err),
					Category:  CategorySystem,
					Severity:  SeverityMedium,
					Message:   "unprintable error",
					Context:   copyContext(fctx),
				}
			}
			h.logger.Error("panic while handling %s: %v", rec.ErrorType, r)
		}
	}()

	o := handleOptions{severity: SeverityMedium}
	for _, opt := range opts {
		opt(&o)
	}

	if err == nil {
		err = fmt.Errorf("nil error handled")
	}

	rec = Record{
		Timestamp: h.now(),
		ErrorType: TypeName(err),
		Category:  Categorize(err),
		Severity:  o.severity,
		Message:   err.Error(),
		Traceback: chain(err),
		Context:   copyContext(fctx),
	}

	count := h.tally.Inc(rec.ErrorType)
	if count > h.patternLimit {
		rec.PatternDetected = true
		if !rec.Severity.AtLeast(SeverityHigh) {
			rec.Severity = SeverityHigh
		}
	}
	rec.RecoveryAction = recoveryFor(rec.Category)

	component, _ := rec.Context["component"].(string)
	if component == "" {
		component = "unknown"
	}
	h.logger.Error("Error in %s: %s [type=%s category=%s severity=%s count=%d]",
		component, rec.Message, rec.ErrorType, rec.Category, rec.Severity, count)
	if rec.PatternDetected {
		h.logger.Warn("Error pattern detected: %s occurred %d times", rec.ErrorType, count)
	}

	if h.recorder != nil {
		h.recorder.IncFault(string(rec.Category), string(rec.Severity))
	}

	h.persist(ctx, rec, count)

	if h.notifier != nil && (o.notify || rec.Severity.AtLeast(SeverityHigh)) {
		if nerr := h.notifier.Notify(ctx, rec); nerr != nil {
			h.logger.Error("Failed to send error notification: %v", nerr)
		}
	}

	return rec
}

func (h *Handler) persist(ctx context.Context, rec Record, count int) {
	if h.store == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		h.logger.Warn("Failed to encode error record: %v", err)
		return
	}
	// The suffix keeps records with equal clock readings apart.
	key := RecordPrefix + rec.Timestamp.UTC().Format(time.RFC3339Nano) + ":" + uuid.NewString()[:8]
	if err := h.store.Set(ctx, key, data, RecordTTL); err != nil {
		h.logger.Warn("Failed to store error record %s: %v", key, err)
	}

	counter, _ := json.Marshal(count)
	if err := h.store.Set(ctx, PatternPrefix+rec.ErrorType, counter, PatternTTL); err != nil {
		h.logger.Warn("Failed to store error pattern for %s: %v", rec.ErrorType, err)
	}
}

// Summary aggregates the persisted records still within retention.
type Summary struct {
	TotalErrors      int              `json:"total_errors"`
	ByCategory       map[Category]int `json:"by_category"`
	BySeverity       map[Severity]int `json:"by_severity"`
	PatternsDetected bool             `json:"patterns_detected"`
	Patterns         map[string]int   `json:"patterns,omitempty"`
}

// Summary reads recent records from the store. Without a store it reports the in-process
// tally only.
func (h *Handler) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
		Patterns:   make(map[string]int),
	}
	for name, count := range h.tally.Snapshot() {
		if count > h.patternLimit {
			sum.Patterns[name] = count
		}
	}
	sum.PatternsDetected = len(sum.Patterns) > 0

	if h.store == nil {
		return sum, nil
	}

	keys, err := h.store.Keys(ctx, RecordPrefix+"*")
	if err != nil {
		return sum, fmt.Errorf("failed to list error records: %w", err)
	}
	for _, key := range keys {
		data, err := h.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			h.logger.Warn("Skipping unreadable error record %s: %v", key, err)
			continue
		}
		sum.TotalErrors++
		sum.ByCategory[rec.Category]++
		sum.BySeverity[rec.Severity]++
	}
	return sum, nil
}

func copyContext(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
