// Package kv provides the key/value backends behind the fingerprint cache, the error store
// and the metrics store. All backends share one contract so a deployment can pick memory,
// Redis or SQLite without the callers noticing.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = errors.New("kv: key not found")

// ScanBatch is the number of keys requested per scan round trip.
const ScanBatch = 100

// Store is a key/value backend with per-key expiry.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 means the key never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Keys returns the live keys matching a glob pattern ("review:*"). Patterns use '*' for any
	// run of characters and '?' for one; every backend matches '/' and ':' with '*'.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// DeleteAll removes keys in a single transaction and reports how many existed.
	DeleteAll(ctx context.Context, keys []string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
