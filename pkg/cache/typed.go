package cache

import (
	"context"
	"time"
)

// Typed helpers keyed by a content or query hash.

func (c *Cache) GetReview(ctx context.Context, contentHash string, dst any) bool {
	return c.Get(ctx, PrefixReview+contentHash, dst)
}

func (c *Cache) SetReview(ctx context.Context, contentHash string, review any) bool {
	return c.Set(ctx, PrefixReview+contentHash, review, 0)
}

func (c *Cache) GetStyleCheck(ctx context.Context, contentHash string, dst any) bool {
	return c.Get(ctx, PrefixStyleCheck+contentHash, dst)
}

func (c *Cache) SetStyleCheck(ctx context.Context, contentHash string, result any) bool {
	return c.Set(ctx, PrefixStyleCheck+contentHash, result, 0)
}

func (c *Cache) GetQuery(ctx context.Context, queryHash string, dst any) bool {
	return c.Get(ctx, PrefixQuery+queryHash, dst)
}

func (c *Cache) SetQuery(ctx context.Context, queryHash string, response any) bool {
	return c.Set(ctx, PrefixQuery+queryHash, response, 0)
}

// GetWorkflow loads a stored workflow result.
func (c *Cache) GetWorkflow(ctx context.Context, workflowID string, dst any) bool {
	return c.Get(ctx, PrefixWorkflow+workflowID, dst)
}

func (c *Cache) SetWorkflow(ctx context.Context, workflowID string, result any, ttl time.Duration) bool {
	return c.Set(ctx, PrefixWorkflow+workflowID, result, ttl)
}
