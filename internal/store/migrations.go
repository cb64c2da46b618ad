package store

import "fmt"

const schemaVersion = "1"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *Store) migrate() error {
	statements := []string{
		// Monitoring sessions. ended_at NULL marks the active session;
		// at most one per user is enforced by the partial unique index.
		`CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			ended_at    DATETIME,
			report_json TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
			ON sessions(user_id) WHERE ended_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_started
			ON sessions(user_id, started_at DESC)`,

		// Ordered captures within a session. Raw OCR text is kept for the
		// end-of-session concatenation; analysis_json holds the sanitized
		// classifier output.
		`CREATE TABLE IF NOT EXISTS captures (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT NOT NULL REFERENCES sessions(id),
			seq           INTEGER NOT NULL,
			text          TEXT NOT NULL,
			analysis_json TEXT,
			created_at    DATETIME NOT NULL,
			UNIQUE(session_id, seq)
		)`,

		// Per-user knowledge aggregate, one row per normalized key.
		`CREATE TABLE IF NOT EXISTS knowledge_categories (
			user_id          TEXT NOT NULL,
			name             TEXT NOT NULL,
			count            INTEGER NOT NULL DEFAULT 0,
			last_seen        DATETIME NOT NULL,
			related_keywords TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_keywords (
			user_id    TEXT NOT NULL,
			keyword    TEXT NOT NULL,
			count      INTEGER NOT NULL DEFAULT 0,
			last_seen  DATETIME NOT NULL,
			category   TEXT NOT NULL,
			importance INTEGER NOT NULL DEFAULT 5,
			PRIMARY KEY (user_id, keyword)
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_urls (
			user_id       TEXT NOT NULL,
			url           TEXT NOT NULL,
			visits        INTEGER NOT NULL DEFAULT 0,
			last_visited  DATETIME NOT NULL,
			category      TEXT NOT NULL,
			safety_rating TEXT NOT NULL DEFAULT 'unknown',
			PRIMARY KEY (user_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS knowledge_state (
			user_id      TEXT PRIMARY KEY,
			last_updated DATETIME NOT NULL
		)`,

		// Append-only log of every successful classification.
		`CREATE TABLE IF NOT EXISTS analyses (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT NOT NULL,
			category      TEXT NOT NULL,
			keywords_json TEXT NOT NULL DEFAULT '[]',
			urls_json     TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user_created
			ON analyses(user_id, created_at DESC)`,

		// Store metadata
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	return nil
}

func (s *Store) seedMeta() error {
	seeds := map[string]string{
		"schema_version": schemaVersion,
		"created_at":     nowUTC().Format("2006-01-02 15:04:05"),
	}
	for key, value := range seeds {
		_, err := s.db.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("seeding meta %s: %w", key, err)
		}
	}
	return nil
}
