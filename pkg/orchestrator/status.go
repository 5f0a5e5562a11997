package orchestrator

import (
	"context"
	"sort"
	"time"

	"docflow/pkg/agent/middleware/resilience/ratelimit"
	"docflow/pkg/faults"
	"docflow/pkg/perf"
)

// CacheStatus reports backend reachability.
type CacheStatus struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Timestamp   time.Time        `json:"timestamp"`
	Steps       map[string]bool  `json:"steps"`
	Cache       CacheStatus      `json:"cache"`
	Running     int              `json:"running_operations"`
	Performance perf.Summary     `json:"performance"`
	Errors      faults.Summary   `json:"errors"`
	RateLimit   *ratelimit.Stats `json:"rate_limit,omitempty"`
}

// Status reports step availability, cache health, and performance and error summaries.
// Summary failures are logged and leave the section empty.
func (o *Orchestrator) Status(ctx context.Context) Status {
	st := Status{
		Timestamp: time.Now().UTC(),
		Steps:     make(map[string]bool, len(o.steps)),
		Running:   o.tracker.Running(),
	}
	for kind := range o.steps {
		st.Steps[kind] = true
	}

	if err := o.cache.Ping(ctx); err != nil {
		st.Cache.Error = err.Error()
	} else {
		st.Cache.Available = true
	}

	var err error
	if st.Performance, err = o.tracker.Summary(ctx, ""); err != nil {
		o.logger.Warn("Failed to summarize performance: %v", err)
	}
	if st.Errors, err = o.faults.Summary(ctx); err != nil {
		o.logger.Warn("Failed to summarize errors: %v", err)
	}

	if o.limiter != nil {
		stats := o.limiter.GetStats()
		st.RateLimit = &stats
	}
	return st
}

// Kinds lists the registered request kinds in order.
func (o *Orchestrator) Kinds() []string {
	kinds := make([]string, 0, len(o.steps))
	for kind := range o.steps {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
