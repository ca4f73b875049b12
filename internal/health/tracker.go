// Package health tracks process liveness and error rates for the status
// surfaces (chat command, admin API, MCP resource).
package health

import (
	"sync"
	"time"
)

// Below this error rate the process reports healthy.
const healthyThreshold = 0.05

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tracker accumulates request and error counters.
type Tracker struct {
	clock   Clock
	started time.Time

	mu          sync.Mutex
	requests    int64
	errors      int64
	lastError   string
	lastErrorAt time.Time
}

// NewTracker creates a Tracker with uptime measured from now.
func NewTracker() *Tracker {
	return NewTrackerWithClock(realClock{})
}

// NewTrackerWithClock creates a Tracker with a custom clock (for testing).
func NewTrackerWithClock(clock Clock) *Tracker {
	return &Tracker{clock: clock, started: clock.Now()}
}

// RecordRequest counts one handled update or API request.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests++
}

// RecordError counts one component failure and remembers its message.
func (t *Tracker) RecordError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
	t.lastError = msg
	t.lastErrorAt = t.clock.Now()
}

// Status is a point-in-time health snapshot.
type Status struct {
	Healthy     bool      `json:"healthy"`
	Uptime      string    `json:"uptime"`
	StartedAt   time.Time `json:"started_at"`
	Requests    int64     `json:"requests"`
	Errors      int64     `json:"errors"`
	ErrorRate   float64   `json:"error_rate"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at"`
}

// Snapshot reports current counters. A process that has served nothing yet
// is healthy; otherwise healthy means the error rate is under 5%.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rate float64
	if t.requests > 0 {
		rate = float64(t.errors) / float64(t.requests)
	}
	return Status{
		Healthy:     rate < healthyThreshold,
		Uptime:      t.clock.Now().Sub(t.started).Truncate(time.Second).String(),
		StartedAt:   t.started,
		Requests:    t.requests,
		Errors:      t.errors,
		ErrorRate:   rate,
		LastError:   t.lastError,
		LastErrorAt: t.lastErrorAt,
	}
}
