package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Post is one published post, recorded after a successful submission.
type Post struct {
	ID          string
	Topic       string
	Provider    string
	PostURN     string
	PublishedAt time.Time
}

// ErrorEntry is one row of the persistent error journal.
type ErrorEntry struct {
	ID          string
	OccurredAt  time.Time
	Kind        string
	Message     string
	ContextJSON string // JSON object stored as text
}
