// Package workflow contains the bundled workflow steps: query answering, drafting, updating,
// reviewing and the quality checker run at the end of composite workflows.
//
// Steps talk to the completion service through agent.Completer. The orchestrator owns
// request-level caching; steps given a cache also keep completion responses by prompt hash
// (review: and query: keys) so composite workflows reuse them.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"docflow/pkg/agent"
	"docflow/pkg/cache"
	"docflow/pkg/faults"
	"docflow/pkg/kv"
	"docflow/pkg/sources"
)

// Request kinds routed by the orchestrator.
const (
	KindQuery  = "query"
	KindDraft  = "draft"
	KindReview = "review"
	KindUpdate = "update"
)

// ErrMissingField is returned when a required request field is absent or empty.
var ErrMissingField = errors.New("missing required field")

// Result is the JSON-shaped output of a step.
type Result map[string]any

// Input carries a request body and any context retrieved for it.
type Input struct {
	Body    map[string]any
	Context []sources.Record
}

// Step executes one kind of request.
type Step interface {
	Execute(ctx context.Context, in Input) (Result, error)
}

// StepFunc adapts a function to Step.
type StepFunc func(ctx context.Context, in Input) (Result, error)

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, in Input) (Result, error) {
	return f(ctx, in)
}

// String returns Body[key] as text. Strings are returned as-is, other values as JSON.
func (in Input) String(key string) string {
	v, ok := in.Body[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Require is String for mandatory fields. A blank value is an invalid-argument fault.
func (in Input) Require(key string) (string, error) {
	v := in.String(key)
	if strings.TrimSpace(v) == "" {
		return "", faults.New(faults.KindInvalidArgument, fmt.Errorf("%w: %s", ErrMissingField, key))
	}
	return v, nil
}

// contextExtra groups retrieved records by source for the completion prompt. A "context"
// field in the body is passed through.
func contextExtra(in Input) map[string]any {
	extra := make(map[string]any)
	for _, rec := range in.Context {
		list, _ := extra[rec.Type].([]map[string]any)
		extra[rec.Type] = append(list, map[string]any{"id": rec.ID, "data": rec.Data})
	}
	if v, ok := in.Body["context"]; ok && v != nil {
		extra["context"] = v
	}
	return extra
}

// promptHash keys a completion response by everything sent to the completer.
func promptHash(system, user string, extra map[string]any) string {
	data, err := json.Marshal(extra)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", extra))
	}
	return cache.HashString(system + "\x00" + user + "\x00" + string(data))
}

// Reference points at a context record used to produce a result.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func references(records []sources.Record) []Reference {
	refs := make([]Reference, 0, len(records))
	for _, rec := range records {
		refs = append(refs, Reference{Type: rec.Type, ID: rec.ID})
	}
	return refs
}

// DefaultSteps registers the bundled steps by request kind.
func DefaultSteps(completer agent.Completer, history kv.Store, responses *cache.Cache, reviewOpts ...ReviewOption) map[string]Step {
	reviewOpts = append([]ReviewOption{WithResponseCache(responses)}, reviewOpts...)
	return map[string]Step{
		KindQuery:  NewQueryAgent(completer, history).WithResponseCache(responses),
		KindDraft:  NewDraftAgent(completer),
		KindUpdate: NewUpdateAgent(completer),
		KindReview: NewReviewAgent(completer, reviewOpts...),
	}
}
