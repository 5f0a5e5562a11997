package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docflow/pkg/faults"
	"docflow/pkg/perf"
	"docflow/pkg/sources"
	"docflow/pkg/workflow"
)

// Workflow types accepted by RunWorkflow.
const (
	WorkflowNewContent = "new_content"
	WorkflowUpdate     = "update"
	WorkflowReview     = "review"
)

// WorkflowTTL is how long a finished workflow stays readable through WorkflowStatus.
const WorkflowTTL = 24 * time.Hour

//nolint:gochecknoglobals
var workflowSteps = map[string]string{
	WorkflowNewContent: workflow.KindDraft,
	WorkflowUpdate:     workflow.KindUpdate,
	WorkflowReview:     workflow.KindReview,
}

// Refs name the context to retrieve for a workflow.
type Refs struct {
	JiraIDs       []string       `json:"jira_ids,omitempty"`
	ConfluenceIDs []string       `json:"confluence_ids,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// WorkflowMetadata describes how a workflow result was produced.
type WorkflowMetadata struct {
	WorkflowID      string            `json:"workflow_id"`
	Timestamp       time.Time         `json:"timestamp"`
	ContextUsed     []sources.Record  `json:"context_used"`
	PartialContext  bool              `json:"partial_context"`
	ContextErrors   map[string]string `json:"context_errors,omitempty"`
	OriginalContext map[string]any    `json:"original_context,omitempty"`
}

// WorkflowResult is the aggregated output of RunWorkflow.
type WorkflowResult struct {
	WorkflowType   string                 `json:"workflow_type"`
	Content        workflow.Result        `json:"content"`
	QualityMetrics workflow.QualityReport `json:"quality_metrics"`
	Metadata       WorkflowMetadata       `json:"metadata"`
}

// RunWorkflow retrieves context from the issue tracker and the wiki concurrently, runs the
// step for workflowType over content, scores the output and stores the result under its
// workflow id. A failing context source marks the result partial and never fails the run.
// Faults are classified with MEDIUM severity and returned unchanged.
func (o *Orchestrator) RunWorkflow(ctx context.Context, workflowType string, content map[string]any, refs Refs) (WorkflowResult, error) {
	id := uuid.NewString()
	kind := "workflow_" + workflowType
	opID := kind + "_" + id

	var out WorkflowResult
	_, err := o.tracked(ctx, opID, kind, func(ctx context.Context) (workflow.Result, error) {
		res, err := o.runWorkflow(ctx, id, workflowType, content, refs)
		out = res
		return res.Content, err
	})
	if err != nil {
		o.faults.Handle(context.WithoutCancel(ctx), err, map[string]any{
			"component":     component,
			"workflow_type": workflowType,
			"operation_id":  opID,
		}, faults.WithSeverity(faults.SeverityMedium))
		return WorkflowResult{}, err
	}

	o.cache.SetWorkflow(ctx, id, out, WorkflowTTL)
	return out, nil
}

func (o *Orchestrator) runWorkflow(ctx context.Context, id, workflowType string, content map[string]any, refs Refs) (WorkflowResult, error) {
	kind, ok := workflowSteps[workflowType]
	if !ok {
		return WorkflowResult{}, faults.New(faults.KindInvalidArgument, fmt.Errorf("%w: %s", ErrUnknownWorkflowType, workflowType))
	}
	step, ok := o.steps[kind]
	if !ok {
		return WorkflowResult{}, faults.New(faults.KindInvalidArgument, fmt.Errorf("%w: %s", ErrUnknownRequestKind, kind))
	}

	records, errs := o.retrieveContext(ctx, refs)

	body := make(map[string]any, len(content)+1)
	for k, v := range content {
		body[k] = v
	}
	if len(refs.Context) > 0 {
		body["context"] = refs.Context
	}

	result, err := step.Execute(ctx, workflow.Input{Body: body, Context: records})
	if err != nil {
		return WorkflowResult{}, err
	}

	text, _ := result["content"].(string)
	if text == "" {
		text, _ = content["content"].(string)
	}
	quality, err := o.quality.Check(ctx, text)
	if err != nil {
		return WorkflowResult{}, fmt.Errorf("quality check: %w", err)
	}

	return WorkflowResult{
		WorkflowType:   workflowType,
		Content:        result,
		QualityMetrics: quality,
		Metadata: WorkflowMetadata{
			WorkflowID:      id,
			Timestamp:       time.Now().UTC(),
			ContextUsed:     records,
			PartialContext:  len(errs) > 0,
			ContextErrors:   errs,
			OriginalContext: refs.Context,
		},
	}, nil
}

// retrieveContext fetches from both sources at once. Failures are collected per source and
// never cancel the other fetch.
func (o *Orchestrator) retrieveContext(ctx context.Context, refs Refs) ([]sources.Record, map[string]string) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		fetched = make(map[string][]sources.Record)
		errs    map[string]string
	)

	fail := func(name, msg string) {
		mu.Lock()
		defer mu.Unlock()
		if errs == nil {
			errs = make(map[string]string)
		}
		errs[name] = msg
		o.logger.Warn("Context retrieval from %s failed: %s", name, msg)
	}

	fetch := func(name string, src sources.Source, ids []string) {
		if len(ids) == 0 {
			return
		}
		if src == nil {
			fail(name, "source not configured")
			return
		}
		g.Go(func() error {
			records, err := src.Fetch(ctx, ids)
			if err != nil {
				fail(name, err.Error())
				return nil
			}
			mu.Lock()
			fetched[name] = records
			mu.Unlock()
			return nil
		})
	}

	fetch(sources.Jira, o.issues, refs.JiraIDs)
	fetch(sources.Confluence, o.wiki, refs.ConfluenceIDs)
	_ = g.Wait()

	records := make([]sources.Record, 0, len(fetched[sources.Jira])+len(fetched[sources.Confluence]))
	records = append(records, fetched[sources.Jira]...)
	records = append(records, fetched[sources.Confluence]...)
	return records, errs
}

// WorkflowState is a stored workflow result plus the performance summary of its type.
type WorkflowState struct {
	WorkflowResult
	Performance perf.Summary `json:"performance"`
}

// WorkflowStatus loads a stored workflow result.
func (o *Orchestrator) WorkflowStatus(ctx context.Context, workflowID string) (WorkflowState, error) {
	var state WorkflowState
	if !o.cache.GetWorkflow(ctx, workflowID, &state.WorkflowResult) {
		return WorkflowState{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	perfSummary, err := o.tracker.Summary(ctx, "workflow_"+state.WorkflowType)
	if err != nil {
		o.logger.Warn("Failed to summarize workflow performance: %v", err)
	}
	state.Performance = perfSummary
	return state, nil
}
