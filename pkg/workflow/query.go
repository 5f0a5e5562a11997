package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docflow/pkg/agent"
	"docflow/pkg/cache"
	"docflow/pkg/kv"
	"docflow/pkg/logx"
)

const (
	// SessionPrefix keys stored session histories.
	SessionPrefix = "session:"

	// HistoryLimit is the number of turns kept per session.
	HistoryLimit = 10
	// HistoryTTL is how long an idle session is remembered.
	HistoryTTL = 24 * time.Hour
)

const queryPrompt = "You are a documentation assistant. Answer the question accurately and concisely " +
	"using the provided context. Say so when the context does not contain the answer."

// Turn is one question and answer in a session.
type Turn struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryAgent answers questions and keeps per-session history in a kv.Store.
type QueryAgent struct {
	completer agent.Completer
	history   kv.Store
	responses *cache.Cache
	logger    *logx.Logger
}

// NewQueryAgent creates a query step. A nil history store disables session history.
func NewQueryAgent(completer agent.Completer, history kv.Store) *QueryAgent {
	return &QueryAgent{completer: completer, history: history, logger: logx.NewLogger("query-agent")}
}

// WithResponseCache keeps sessionless answers under query:{prompt hash}.
func (q *QueryAgent) WithResponseCache(c *cache.Cache) *QueryAgent {
	q.responses = c
	return q
}

// Execute answers Body["query"]. When Body["session_id"] is set, earlier turns of the session
// are sent as context and the new turn is appended.
func (q *QueryAgent) Execute(ctx context.Context, in Input) (Result, error) {
	start := time.Now()

	query, err := in.Require("query")
	if err != nil {
		return nil, err
	}
	sessionID := in.String("session_id")

	extra := contextExtra(in)
	turns := q.loadHistory(ctx, sessionID)
	if len(turns) > 0 {
		extra["conversation_history"] = turns
	}

	// Answers inside a session depend on its history and are never shared.
	var key string
	if sessionID == "" {
		key = promptHash(queryPrompt, query, extra)
	}

	var response string
	if key == "" || !q.responses.GetQuery(ctx, key, &response) {
		response, err = q.completer.Call(ctx, queryPrompt, query, extra)
		if err != nil {
			q.logger.Error("Query failed after %.2fs: %v", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("query: %w", err)
		}
		if key != "" {
			q.responses.SetQuery(ctx, key, response)
		}
	}

	now := time.Now().UTC()
	q.saveHistory(ctx, sessionID, append(turns, Turn{Query: query, Response: response, Timestamp: now}))

	q.logger.Info("Query processed successfully in %.2fs", time.Since(start).Seconds())
	return Result{
		"response":   response,
		"query":      query,
		"session_id": sessionID,
		"references": references(in.Context),
		"timestamp":  now.Format(time.RFC3339),
	}, nil
}

// History returns the stored turns of a session, oldest first.
func (q *QueryAgent) History(ctx context.Context, sessionID string) []Turn {
	return q.loadHistory(ctx, sessionID)
}

func (q *QueryAgent) loadHistory(ctx context.Context, sessionID string) []Turn {
	if q.history == nil || sessionID == "" {
		return nil
	}
	data, err := q.history.Get(ctx, SessionPrefix+sessionID)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			q.logger.Warn("Failed to load history for session %s: %v", sessionID, err)
		}
		return nil
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		q.logger.Warn("Discarding unreadable history for session %s: %v", sessionID, err)
		return nil
	}
	return turns
}

func (q *QueryAgent) saveHistory(ctx context.Context, sessionID string, turns []Turn) {
	if q.history == nil || sessionID == "" {
		return
	}
	if len(turns) > HistoryLimit {
		turns = turns[len(turns)-HistoryLimit:]
	}
	data, err := json.Marshal(turns)
	if err != nil {
		q.logger.Warn("Failed to encode history for session %s: %v", sessionID, err)
		return
	}
	if err := q.history.Set(ctx, SessionPrefix+sessionID, data, HistoryTTL); err != nil {
		q.logger.Warn("Failed to save history for session %s: %v", sessionID, err)
	}
}
