package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const defaultTTL = 30 * time.Minute

// Store holds one Session per user behind a single mutex. Transition methods
// run inside Mutate; everything handed out elsewhere is a deep copy, so no
// caller can touch live state without the lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	clock  Clock
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a Store whose sessions expire after ttl of inactivity.
// If ttl <= 0, the default (30 minutes) is used.
func NewStore(ttl time.Duration) *Store {
	return NewStoreWithClock(ttl, realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(ttl time.Duration, clock Clock) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		sessions: make(map[int64]*Session),
		clock:    clock,
		ttl:      ttl,
		logger:   slog.Default(),
	}
}

// Get returns a copy of the user's session, or false if none exists.
func (st *Store) Get(userID int64) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return copySession(s), true
}

// Mutate applies fn to the user's session under the store lock, creating an
// idle session on first interaction. When fn returns nil the session's
// UpdatedAt is stamped; either way the resulting state is returned as a
// copy. fn must not retain the *Session past its return.
func (st *Store) Mutate(userID int64, fn func(*Session) error) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		now := st.clock.Now()
		s = &Session{
			UserID:    userID,
			Stage:     StageIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		st.sessions[userID] = s
	}

	if err := fn(s); err != nil {
		return copySession(s), err
	}
	s.UpdatedAt = st.clock.Now()
	return copySession(s), nil
}

// Delete removes the user's session. Returns false if none existed.
func (st *Store) Delete(userID int64) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[userID]; !ok {
		return false
	}
	delete(st.sessions, userID)
	return true
}

// All returns copies of every session, ordered by user ID.
func (st *Store) All() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, copySession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions whose last activity is older than the TTL and
// returns how many were removed. An expired in-flight session is safe to
// drop: a late commit for it fails the epoch or stage check and is
// discarded.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.clock.Now().Add(-st.ttl)
	removed := 0
	for id, s := range st.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions until ctx is cancelled.
// If interval <= 0, it defaults to 1 minute.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if n := st.Sweep(); n > 0 {
			st.logger.Info("expired sessions removed", "count", n)
		}
	}
}
