// Package metrics provides the Prometheus recorders for docflow operations, the cache and
// the fault classifier, plus helpers to expose a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder observes orchestrator-level events.
type Recorder interface {
	// ObserveOperation records a finished tracked operation.
	ObserveOperation(kind, status string, duration time.Duration)
	// ObserveCacheLookup records a fingerprint cache hit or miss.
	ObserveCacheLookup(hit bool)
	// IncFault counts a classified fault.
	IncFault(category, severity string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op recorder.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveOperation(_, _ string, _ time.Duration) {}

func (n *NoopRecorder) ObserveCacheLookup(_ bool) {}

func (n *NoopRecorder) IncFault(_, _ string) {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	faultsTotal       *prometheus.CounterVec
}

// NewPrometheusRecorder registers the docflow collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_operations_total",
				Help: "Total number of tracked operations by kind and status",
			},
			[]string{"kind", "status"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_operation_duration_seconds",
				Help:    "Duration of tracked operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_cache_lookups_total",
				Help: "Fingerprint cache lookups by result",
			},
			[]string{"result"},
		),
		faultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_faults_total",
				Help: "Classified faults by category and severity",
			},
			[]string{"category", "severity"},
		),
	}
}

func (p *PrometheusRecorder) ObserveOperation(kind, status string, duration time.Duration) {
	p.operationsTotal.WithLabelValues(kind, status).Inc()
	p.operationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) IncFault(category, severity string) {
	p.faultsTotal.WithLabelValues(category, severity).Inc()
}
