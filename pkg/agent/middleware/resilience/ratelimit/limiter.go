// Package ratelimit provides rate limiting for the remote completion client.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimitExceeded is returned when a call would exceed the window limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// DefaultWindow is the trailing period calls are counted over.
const DefaultWindow = time.Minute

// Limiter admits or rejects calls without blocking.
type Limiter interface {
	// Admit records a call and returns nil, or returns ErrRateLimitExceeded without recording.
	Admit() error
	// GetStats returns current limiter statistics.
	GetStats() Stats
}

// Stats represents current limiter statistics.
type Stats struct {
	Limit    int           `json:"limit"`
	Window   time.Duration `json:"window"`
	InWindow int           `json:"in_window"`
	Rejected int64         `json:"rejected"`
}

// SlidingWindow counts admitted calls over a trailing window. Timestamps older than the
// window are pruned on every check, so the count never includes stale calls.
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	calls    []time.Time // ascending
	rejected int64
	now      func() time.Time
}

// NewSlidingWindow admits at most limit calls per window. A limit <= 0 admits everything.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's clock for tests.
func (s *SlidingWindow) WithClock(now func() time.Time) *SlidingWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// prune drops timestamps outside the window. Caller holds mu.
func (s *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.calls) && !s.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.calls = append(s.calls[:0], s.calls[i:]...)
	}
}

func (s *SlidingWindow) Admit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.prune(now)

	if s.limit > 0 && len(s.calls) >= s.limit {
		s.rejected++
		return fmt.Errorf("%w: %d calls in the last %s", ErrRateLimitExceeded, len(s.calls), s.window)
	}
	s.calls = append(s.calls, now)
	return nil
}

func (s *SlidingWindow) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune(s.now())
	return Stats{
		Limit:    s.limit,
		Window:   s.window,
		InWindow: len(s.calls),
		Rejected: s.rejected,
	}
}
