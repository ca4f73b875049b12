package bot

import (
	"sync"
	"time"
)

// Clock abstracts time for rate-limit tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultRateLimit  = 10
	defaultRateWindow = time.Minute
)

// RateLimiter caps how many research-triggering commands a user may issue
// inside a sliding window. Other commands are not counted.
type RateLimiter struct {
	mu     sync.Mutex
	clock  Clock
	limit  int
	window time.Duration
	hits   map[int64][]time.Time
}

// NewRateLimiter creates a limiter allowing limit hits per window per user.
// Non-positive arguments fall back to 10 per minute.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithClock(limit, window, realClock{})
}

// NewRateLimiterWithClock creates a limiter with an injected clock.
func NewRateLimiterWithClock(limit int, window time.Duration, clock Clock) *RateLimiter {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if window <= 0 {
		window = defaultRateWindow
	}
	return &RateLimiter{
		clock:  clock,
		limit:  limit,
		window: window,
		hits:   make(map[int64][]time.Time),
	}
}

// Allow records a hit for userID and reports whether it is within the limit.
// Denied calls are not recorded, so a user who keeps hammering does not push
// their own window forward.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	kept := r.hits[userID][:0]
	for _, t := range r.hits[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= r.limit {
		r.hits[userID] = kept
		return false
	}
	r.hits[userID] = append(kept, now)
	return true
}

// Retry reports how long userID must wait before the next allowed hit.
// It returns zero when a hit would be allowed now.
func (r *RateLimiter) Retry(userID int64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	var live []time.Time
	for _, t := range r.hits[userID] {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	if len(live) < r.limit {
		return 0
	}
	return live[0].Sub(cutoff)
}
