package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glimpsehq/glimpse/internal/extract"
)

// AnalysisRecord is one entry in the append-only classification log.
type AnalysisRecord struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Keywords  []string  `json:"keywords"`
	URLs      []string  `json:"urls"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultRecentAnalyses bounds RecentAnalyses when no limit is given.
const DefaultRecentAnalyses = 100

// LogAnalysis appends one successful classification to the user's log.
func (s *Store) LogAnalysis(ctx context.Context, userID string, a *extract.CaptureAnalysis) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (user_id, category, keywords_json, urls_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, a.Category, marshalStrings(a.Keywords), marshalStrings(a.URLs), nowUTC(),
	)
	if err != nil {
		return fmt.Errorf("logging analysis: %w", err)
	}
	return nil
}

// RecentAnalyses returns the user's latest classifications, newest-first.
func (s *Store) RecentAnalyses(ctx context.Context, userID string, limit int) ([]*AnalysisRecord, error) {
	if limit <= 0 || limit > DefaultRecentAnalyses {
		limit = DefaultRecentAnalyses
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, category, keywords_json, urls_json, created_at
		 FROM analyses WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	var out []*AnalysisRecord
	for rows.Next() {
		r := &AnalysisRecord{}
		var kwJSON, urlJSON string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Category, &kwJSON, &urlJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		r.Keywords = unmarshalStrings(kwJSON)
		r.URLs = unmarshalStrings(urlJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}
