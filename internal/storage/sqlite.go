package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// The error journal keeps only the most recent entries.
const journalCap = 100

const defaultListLimit = 20

// Store wraps a SQLite database holding the publish history and the error
// journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "trendbot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Posts ---

// SavePost records a published post. A missing ID is generated; a missing
// PublishedAt defaults to now.
func (s *Store) SavePost(p Post) (Post, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO posts (id, topic, provider, post_urn, published_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Topic, p.Provider, p.PostURN, p.PublishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

func (s *Store) GetPost(id string) (Post, error) {
	var p Post
	var publishedAt string
	err := s.db.QueryRow(`
		SELECT id, topic, provider, post_urn, published_at
		FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Topic, &p.Provider, &p.PostURN, &publishedAt)
	if err == sql.ErrNoRows {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	t, err := time.Parse(time.RFC3339, publishedAt)
	if err != nil {
		return Post{}, fmt.Errorf("parsing published_at: %w", err)
	}
	p.PublishedAt = t
	return p, nil
}

// ListPosts returns the most recent posts, newest first.
// If limit <= 0, the default (20) is used.
func (s *Store) ListPosts(limit int) ([]Post, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(`
		SELECT id, topic, provider, post_urn, published_at
		FROM posts ORDER BY published_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Post
	for rows.Next() {
		var p Post
		var publishedAt string
		if err := rows.Scan(&p.ID, &p.Topic, &p.Provider, &p.PostURN, &publishedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, publishedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing published_at: %w", err)
		}
		p.PublishedAt = t
		results = append(results, p)
	}
	return results, rows.Err()
}

// CountPosts returns the total number of recorded posts.
func (s *Store) CountPosts() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM posts").Scan(&n)
	return n, err
}

// --- Error journal ---

// LogError appends a journal entry and prunes the journal to its cap. A
// missing ID is generated; a missing OccurredAt defaults to now; empty
// context becomes an empty JSON object.
func (s *Store) LogError(e ErrorEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.ContextJSON == "" {
		e.ContextJSON = "{}"
	}

	if _, err := s.db.Exec(`
		INSERT INTO error_journal (id, occurred_at, kind, message, context_json)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.OccurredAt.UTC().Format(time.RFC3339), e.Kind, e.Message, e.ContextJSON,
	); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		DELETE FROM error_journal WHERE id NOT IN (
			SELECT id FROM error_journal ORDER BY occurred_at DESC, id DESC LIMIT ?
		)`, journalCap,
	)
	return err
}

// RecentErrors returns the most recent journal entries, newest first.
// If limit <= 0, the default (20) is used.
func (s *Store) RecentErrors(limit int) ([]ErrorEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(`
		SELECT id, occurred_at, kind, message, context_json
		FROM error_journal ORDER BY occurred_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ErrorEntry
	for rows.Next() {
		var e ErrorEntry
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Kind, &e.Message, &e.ContextJSON); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("parsing occurred_at: %w", err)
		}
		e.OccurredAt = t
		results = append(results, e)
	}
	return results, rows.Err()
}

// CountErrors returns the current journal size.
func (s *Store) CountErrors() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM error_journal").Scan(&n)
	return n, err
}
