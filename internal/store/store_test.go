package store

import (
	"context"
	"testing"

	"github.com/glimpsehq/glimpse/internal/extract"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	tables := []string{"sessions", "captures", "knowledge_categories",
		"knowledge_keywords", "knowledge_urls", "knowledge_state",
		"analyses", "meta"}
	for _, table := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestSchemaVersionSeeded(t *testing.T) {
	s := newTestStore(t)

	var version string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if version != "1" {
		t.Errorf("schema_version = %q, want 1", version)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", UserID: "alice", StartedAt: nowUTC()}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	if err := s.AppendCapture(ctx, &Capture{SessionID: "s1", Text: "hello", CreatedAt: nowUTC()}); err != nil {
		t.Fatalf("appending capture: %v", err)
	}
	if err := s.MergeAnalysis(ctx, "alice", &extract.CaptureAnalysis{
		Category: "coding",
		Keywords: []string{"golang"},
		URLs:     []string{"https://github.com"},
	}); err != nil {
		t.Fatalf("merging analysis: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.SessionCount != 1 {
		t.Errorf("sessions = %d, want 1", stats.SessionCount)
	}
	if stats.ActiveCount != 1 {
		t.Errorf("active sessions = %d, want 1", stats.ActiveCount)
	}
	if stats.CaptureCount != 1 {
		t.Errorf("captures = %d, want 1", stats.CaptureCount)
	}
	if stats.CategoryCount != 1 {
		t.Errorf("categories = %d, want 1", stats.CategoryCount)
	}
	if stats.KeywordCount != 1 {
		t.Errorf("keywords = %d, want 1", stats.KeywordCount)
	}
	if stats.URLCount != 1 {
		t.Errorf("urls = %d, want 1", stats.URLCount)
	}
}
