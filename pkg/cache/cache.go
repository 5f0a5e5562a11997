// Package cache provides the fingerprint cache that de-duplicates repeated requests.
//
// Values are stored as JSON in a kv.Store. Every backend failure degrades to a miss (or a
// false return from Set/Clear) and is logged; callers never see cache errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"docflow/pkg/kv"
	"docflow/pkg/logx"
)

// DefaultTTL is used when Set is called with a zero ttl.
const DefaultTTL = time.Hour

// Key prefixes for the typed helpers.
const (
	PrefixReview     = "review:"
	PrefixStyleCheck = "acrolinx:"
	PrefixQuery      = "query:"
	PrefixWorkflow   = "workflow:"
)

// volatileFields never contribute to a fingerprint.
//
//nolint:gochecknoglobals
var volatileFields = []string{"session_id", "reference"}

// Recorder observes cache lookups. metrics.Recorder satisfies it.
type Recorder interface {
	ObserveCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCacheLookup(bool) {}

// Cache is a JSON cache over a kv.Store.
type Cache struct {
	store    kv.Store
	ttl      time.Duration
	recorder Recorder
	reserved []string
	logger   *logx.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithRecorder reports hits and misses to r.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithReserved protects keys under prefixes that other components keep in the same store.
// Clear never removes them.
func WithReserved(prefixes ...string) Option {
	return func(c *Cache) {
		c.reserved = append(c.reserved, prefixes...)
	}
}

// New returns a cache over store. A nil store yields a cache that always misses.
func New(store kv.Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store:    store,
		ttl:      ttl,
		recorder: nopRecorder{},
		logger:   logx.NewLogger("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the cache has a backend.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get decodes the value stored at key into dst and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if !c.Enabled() {
		return false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.logger.Error("Error getting from cache: %v", err)
		}
		c.recorder.ObserveCacheLookup(false)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Error("Error decoding cached value for %s: %v", key, err)
		c.recorder.ObserveCacheLookup(false)
		return false
	}

	logx.Debug(ctx, "cache", "hit for %s", key)
	c.recorder.ObserveCacheLookup(true)
	return true
}

// Set stores value at key. A zero ttl uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("Error encoding value for %s: %v", key, err)
		return false
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Error("Error setting cache: %v", err)
		return false
	}
	return true
}

// Clear removes every key matching pattern outside the reserved prefixes. Keys are collected
// with a batched scan and removed in a single transaction.
func (c *Cache) Clear(ctx context.Context, pattern string) bool {
	if !c.Enabled() {
		return false
	}
	if pattern == "" {
		pattern = "*"
	}

	matched, err := c.store.Keys(ctx, pattern)
	if err != nil {
		c.logger.Error("Error clearing cache: %v", err)
		return false
	}
	keys := matched[:0]
	for _, key := range matched {
		if !c.isReserved(key) {
			keys = append(keys, key)
		}
	}
	n, err := c.store.DeleteAll(ctx, keys)
	if err != nil {
		c.logger.Error("Error clearing cache: %v", err)
		return false
	}
	c.logger.Info("Cleared %d keys matching %s", n, pattern)
	return true
}

func (c *Cache) isReserved(key string) bool {
	for _, prefix := range c.reserved {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Ping checks the backend.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("cache disabled")
	}
	return c.store.Ping(ctx)
}

// Fingerprint returns "{kind}:{sha256}" over the canonical JSON of body with the volatile
// fields removed. Map keys are marshalled in sorted order, so equal bodies give equal keys.
// ok is false when body cannot be encoded; such requests must bypass the cache.
func Fingerprint(kind string, body map[string]any) (key string, ok bool) {
	stable := make(map[string]any, len(body))
	for k, v := range body {
		stable[k] = v
	}
	for _, field := range volatileFields {
		delete(stable, field)
	}

	data, err := json.Marshal(stable)
	if err != nil {
		return "", false
	}
	return kind + ":" + Hash(data), true
}

// Hash returns the hex sha256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash for text.
func HashString(s string) string {
	return Hash([]byte(s))
}
