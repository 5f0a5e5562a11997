// Package sources defines the context source contract used by composite workflows. The issue
// tracker and wiki clients live outside docflow and plug in through Source.
package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Source names used as record types and in workflow metadata.
const (
	Jira       = "jira"
	Confluence = "confluence"
)

// ErrNotFound is returned by Static when an id has no record.
var ErrNotFound = errors.New("sources: record not found")

// Record is one piece of retrieved context.
type Record struct {
	Type string         `json:"type"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Source fetches context records by id.
type Source interface {
	Fetch(ctx context.Context, ids []string) ([]Record, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context, ids []string) ([]Record, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	return f(ctx, ids)
}

// Static is an in-memory Source. It is safe for concurrent use.
type Static struct {
	mu      sync.RWMutex
	kind    string
	records map[string]map[string]any
}

// NewStatic returns an empty in-memory source whose records carry the given type.
func NewStatic(kind string) *Static {
	return &Static{kind: kind, records: make(map[string]map[string]any)}
}

// Put stores data under id.
func (s *Static) Put(id string, data map[string]any) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = data
	return s
}

// Fetch returns one record per id, in order. A missing id fails the whole fetch.
func (s *Static) Fetch(ctx context.Context, ids []string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // context error
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		data, ok := s.records[id]
		if !ok {
			return nil, fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
		}
		out = append(out, Record{Type: s.kind, ID: id, Data: data})
	}
	return out, nil
}
