package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"docflow/pkg/agent"
	agentmetrics "docflow/pkg/agent/middleware/metrics"
	"docflow/pkg/cache"
	"docflow/pkg/config"
	"docflow/pkg/faults"
	"docflow/pkg/kv"
	"docflow/pkg/logx"
	"docflow/pkg/metrics"
	"docflow/pkg/orchestrator"
	"docflow/pkg/perf"
	"docflow/pkg/sources"
	"docflow/pkg/workflow"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
	server   *http.Server
	logger   *logx.Logger
}

// newApp wires configuration into an orchestrator. sourcesPath optionally names a JSON file
// of context records keyed by source and id.
func newApp(ctx context.Context, cfg *config.Config, sourcesPath string) (*app, error) {
	logger := logx.NewLogger("docflow")
	if cfg.Logging.Debug {
		logx.SetDebug(true)
	}
	if len(cfg.Logging.Domains) > 0 {
		logx.SetDebugDomains(cfg.Logging.Domains)
	}

	// An unreachable backend degrades to no store: the cache always misses and records are
	// log-only.
	var store kv.Store
	if opened, err := kv.Open(ctx, cfg); err != nil {
		logger.Warn("Failed to open %s backend, continuing without cache and stores: %v", cfg.Cache.Backend, err)
	} else {
		store = opened
	}
	closeStore := func() {
		if store != nil {
			_ = store.Close()
		}
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)
	llmRecorder := agentmetrics.NewPrometheusRecorder(registry)

	remote, err := agent.NewRemoteClientFromConfig(cfg, llmRecorder)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	handlerOpts := []faults.Option{
		faults.WithRecorder(recorder),
		faults.WithPatternLimit(cfg.Errors.PatternLimit),
	}
	if cfg.Errors.NotifyURL != "" {
		handlerOpts = append(handlerOpts, faults.WithNotifier(
			faults.NewWebhookNotifier(cfg.Errors.NotifyURL, cfg.Errors.NotifyToken, cfg.Errors.NotifyTimeout.Std())))
	}
	handler := faults.NewHandler(store, faults.NewTally(), handlerOpts...)

	trackerOpts := []perf.Option{
		perf.WithRecorder(recorder),
		perf.WithThresholds(perf.Thresholds{
			CPUPercent:    cfg.Performance.CPUThreshold,
			MemoryPercent: cfg.Performance.MemoryThreshold,
			Duration:      cfg.Performance.DurationLimit.Std(),
		}),
	}
	if !cfg.Performance.Enabled {
		trackerOpts = append(trackerOpts, perf.WithSampler(perf.NopSampler{}))
	}
	tracker := perf.NewTracker(store, trackerOpts...)

	c := cache.New(store, cfg.Cache.TTL.Std(),
		cache.WithRecorder(recorder),
		cache.WithReserved(faults.RecordPrefix, faults.PatternPrefix, perf.MetricsPrefix, workflow.SessionPrefix))

	deps := orchestrator.Deps{
		Cache:   c,
		Faults:  handler,
		Tracker: tracker,
		Limiter: remote.Limiter(),
	}
	if store != nil {
		deps.Closers = []io.Closer{store}
	}
	if sourcesPath != "" {
		issues, wiki, err := loadSources(sourcesPath)
		if err != nil {
			closeStore()
			return nil, err
		}
		deps.Issues, deps.Wiki = issues, wiki
	}

	return &app{
		cfg:      cfg,
		orch:     orchestrator.New(workflow.DefaultSteps(remote, store, c), deps),
		registry: registry,
		logger:   logger,
	}, nil
}

// loadSources reads {"jira": {"ID": {...}}, "confluence": {"ID": {...}}} into static sources.
func loadSources(path string) (*sources.Static, *sources.Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var raw map[string]map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	issues := sources.NewStatic(sources.Jira)
	for id, rec := range raw[sources.Jira] {
		issues.Put(id, rec)
	}
	wiki := sources.NewStatic(sources.Confluence)
	for id, rec := range raw[sources.Confluence] {
		wiki.Put(id, rec)
	}
	return issues, wiki, nil
}

// serveMetrics starts the /metrics listener when one is configured.
func (a *app) serveMetrics() {
	if a.cfg.Metrics.Listen == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	a.server = &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics listener failed: %v", err)
		}
	}()
	a.logger.Info("Serving metrics on %s/metrics", a.cfg.Metrics.Listen)
}

func (a *app) Close() error {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics listener shutdown: %v", err)
		}
	}
	return a.orch.Close() //nolint:wrapcheck // backend close errors are already descriptive
}
