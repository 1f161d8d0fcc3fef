// Package ratelimit bounds outbound generative-analysis calls with a
// per-minute sliding window and a daily counter. It is the single shared
// contention point between concurrently processed conversations.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is the sentinel wrapped by RateLimitError. Callers should
// schedule around RetryAfter rather than busy-retrying.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError carries the time until a slot frees up.
type RateLimitError struct {
	RetryAfter time.Duration
	Scope      string // "minute" or "day"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s): retry after %s", e.Scope, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

type Limiter struct {
	mu sync.Mutex

	perMinute int
	perDay    int

	// Timestamps of calls within the last minute, oldest first.
	// Pruned on every Attempt; O(window size) is fine at these rates.
	minuteWindow []time.Time

	dayCount int
	dayStart time.Time // local midnight of the current counting day

	now func() time.Time
}

// New creates a Limiter. A zero or negative bound disables that dimension.
func New(perMinute, perDay int) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
	}
}

// Attempt records a permitted call or returns a *RateLimitError with a
// positive retry-after. Safe for concurrent use.
func (l *Limiter) Attempt() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	// Lazy daily reset at the local midnight boundary.
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !midnight.Equal(l.dayStart) {
		l.dayStart = midnight
		l.dayCount = 0
	}

	// Prune the sliding window.
	cutoff := now.Add(-time.Minute)
	kept := l.minuteWindow[:0]
	for _, t := range l.minuteWindow {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.minuteWindow = kept

	if l.perDay > 0 && l.dayCount >= l.perDay {
		return &RateLimitError{
			RetryAfter: midnight.AddDate(0, 0, 1).Sub(now),
			Scope:      "day",
		}
	}

	if l.perMinute > 0 && len(l.minuteWindow) >= l.perMinute {
		return &RateLimitError{
			RetryAfter: l.minuteWindow[0].Add(time.Minute).Sub(now),
			Scope:      "minute",
		}
	}

	l.minuteWindow = append(l.minuteWindow, now)
	l.dayCount++
	return nil
}
