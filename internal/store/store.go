// Package store provides the SQLite storage layer for Glimpse.
//
// All durable data lives in a single SQLite database file:
// - Monitoring sessions and their ordered captures
// - The per-user knowledge aggregate (categories, keywords, URLs)
// - The append-only per-user analysis log
//
// MergeAnalysis is the single mutation entry point for the aggregate; all
// merge invariants (monotone counters, sticky flagged ratings, create-only
// importance) are enforced here, never by callers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.glimpse/glimpse.db"

// DefaultKeywordImportance is assigned when a keyword is first learned.
// Merges never touch it afterwards; it is editable only via
// SetKeywordImportance.
const DefaultKeywordImportance = 5

// URL safety ratings. Flagged is sticky: merges never change an existing
// rating, and only SetURLSafety may clear a flag.
const (
	SafetySafe    = "safe"
	SafetyUnknown = "unknown"
	SafetyFlagged = "flagged"
)

// Config holds configuration for Open.
type Config struct {
	DBPath string
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	dbPath string

	// userLocks serializes aggregate merges per user so concurrent
	// captures for one user never lose an increment. Different users
	// proceed independently.
	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// Open creates a Store backed by the SQLite database at cfg.DBPath.
// Pass ":memory:" for in-memory databases (testing).
func Open(cfg Config) (*Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A :memory: database exists per connection; cap the pool at one so
	// every query sees the same database.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db:        db,
		dbPath:    cfg.DBPath,
		userLocks: make(map[string]*sync.Mutex),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only diagnostics and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// userLock returns the mutex serializing merges for userID.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

// Stats holds observability statistics about the store.
type Stats struct {
	SessionCount  int64 `json:"session_count"`
	ActiveCount   int64 `json:"active_session_count"`
	CaptureCount  int64 `json:"capture_count"`
	CategoryCount int64 `json:"category_count"`
	KeywordCount  int64 `json:"keyword_count"`
	URLCount      int64 `json:"url_count"`
	AnalysisCount int64 `json:"analysis_count"`
	DBSizeBytes   int64 `json:"db_size_bytes"`
}

// Stats returns counts across all users plus on-disk size.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM sessions", &st.SessionCount},
		{"SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL", &st.ActiveCount},
		{"SELECT COUNT(*) FROM captures", &st.CaptureCount},
		{"SELECT COUNT(*) FROM knowledge_categories", &st.CategoryCount},
		{"SELECT COUNT(*) FROM knowledge_keywords", &st.KeywordCount},
		{"SELECT COUNT(*) FROM knowledge_urls", &st.URLCount},
		{"SELECT COUNT(*) FROM analyses", &st.AnalysisCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("counting (%s): %w", c.query, err)
		}
	}

	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			st.DBSizeBytes = fi.Size()
		}
	}

	return st, nil
}

// nowUTC is stubbed in tests that assert timestamp monotonicity.
var nowUTC = func() time.Time { return time.Now().UTC() }

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
