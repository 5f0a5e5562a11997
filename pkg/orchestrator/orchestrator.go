// Package orchestrator routes typed requests to workflow steps and wraps each one with the
// fingerprint cache, performance tracking and fault handling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"docflow/pkg/agent/middleware/resilience/ratelimit"
	"docflow/pkg/cache"
	"docflow/pkg/faults"
	"docflow/pkg/logx"
	"docflow/pkg/perf"
	"docflow/pkg/sources"
	"docflow/pkg/workflow"
)

const component = "orchestration"

var (
	// ErrUnknownRequestKind is returned by Handle for a kind with no registered step.
	ErrUnknownRequestKind = errors.New("unknown request type")
	// ErrUnknownWorkflowType is returned by RunWorkflow for an unsupported workflow.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")
	// ErrWorkflowNotFound is returned by WorkflowStatus for an unknown or expired id.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// Deps are the collaborators of an Orchestrator. Nil fields get working defaults: a cache
// that always misses, a handler and tracker without stores, and no context sources.
type Deps struct {
	Cache   *cache.Cache
	Faults  *faults.Handler
	Tracker *perf.Tracker
	Quality *workflow.QualityChecker
	Issues  sources.Source // issue tracker
	Wiki    sources.Source
	Limiter ratelimit.Limiter // reported by Status when set
	Closers []io.Closer       // closed by Close, in order
}

// Orchestrator dispatches requests and composite workflows.
type Orchestrator struct {
	steps   map[string]workflow.Step
	cache   *cache.Cache
	faults  *faults.Handler
	tracker *perf.Tracker
	quality *workflow.QualityChecker
	issues  sources.Source
	wiki    sources.Source
	limiter ratelimit.Limiter
	closers []io.Closer
	logger  *logx.Logger
}

// New creates an orchestrator serving the given steps by request kind.
func New(steps map[string]workflow.Step, deps Deps) *Orchestrator {
	o := &Orchestrator{
		steps:   make(map[string]workflow.Step, len(steps)),
		cache:   deps.Cache,
		faults:  deps.Faults,
		tracker: deps.Tracker,
		quality: deps.Quality,
		issues:  deps.Issues,
		wiki:    deps.Wiki,
		limiter: deps.Limiter,
		closers: deps.Closers,
		logger:  logx.NewLogger(component),
	}
	for kind, step := range steps {
		if step != nil {
			o.steps[kind] = step
		}
	}
	if o.cache == nil {
		o.cache = cache.New(nil, 0)
	}
	if o.faults == nil {
		o.faults = faults.NewHandler(nil, faults.NewTally())
	}
	if o.tracker == nil {
		o.tracker = perf.NewTracker(nil, perf.WithSampler(perf.NopSampler{}))
	}
	if o.quality == nil {
		o.quality = workflow.NewQualityChecker()
	}
	return o
}

// Handle serves one request. Cached results are returned without instrumentation. Misses
// run the step for kind as a tracked operation; the result is cached on success and the
// error is classified with HIGH severity on failure and returned unchanged.
func (o *Orchestrator) Handle(ctx context.Context, kind string, body map[string]any) (workflow.Result, error) {
	key, cacheable := cache.Fingerprint(kind, body)
	if !cacheable {
		logx.Debug(ctx, component, "%s request body cannot be fingerprinted, bypassing cache", kind)
	}

	var cached workflow.Result
	if cacheable && o.cache.Get(ctx, key, &cached) {
		logx.Debug(ctx, component, "cache hit for %s request", kind)
		return cached, nil
	}

	opID := perf.NewID(kind)
	result, err := o.tracked(ctx, opID, kind, func(ctx context.Context) (workflow.Result, error) {
		step, ok := o.steps[kind]
		if !ok {
			return nil, faults.New(faults.KindInvalidArgument, fmt.Errorf("%w: %s", ErrUnknownRequestKind, kind))
		}
		return step.Execute(ctx, workflow.Input{Body: body})
	})
	if err != nil {
		o.faults.Handle(context.WithoutCancel(ctx), err, map[string]any{
			"component":    component,
			"request_type": kind,
			"operation_id": opID,
		}, faults.WithSeverity(faults.SeverityHigh))
		return nil, err
	}

	if cacheable {
		o.cache.Set(ctx, key, result, 0)
	}
	return result, nil
}

// tracked runs fn as operation opID. The operation ends in a deferred call so panics and
// cancellation still close it.
func (o *Orchestrator) tracked(ctx context.Context, opID, kind string,
	fn func(context.Context) (workflow.Result, error),
) (workflow.Result, error) {
	if err := o.tracker.Start(ctx, opID, kind); err != nil {
		return nil, fmt.Errorf("failed to start operation: %w", err)
	}

	status := perf.StatusError
	defer func() {
		if _, err := o.tracker.End(context.WithoutCancel(ctx), opID, status); err != nil {
			o.logger.Warn("Failed to end operation %s: %v", opID, err)
		}
	}()

	result, err := fn(ctx)
	if err == nil {
		status = perf.StatusSuccess
	}
	return result, err
}

// ClearCache removes cached entries matching pattern ("" for all).
func (o *Orchestrator) ClearCache(ctx context.Context, pattern string) bool {
	return o.cache.Clear(ctx, pattern)
}

// Close clears the fault tally and closes the backends.
func (o *Orchestrator) Close() error {
	o.faults.Tally().Reset()

	var errs []error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
