package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/glimpsehq/glimpse/internal/extract"
)

// CategoryEntry is one learned category in the aggregate.
type CategoryEntry struct {
	Count           int       `json:"count"`
	LastSeen        time.Time `json:"last_seen"`
	RelatedKeywords []string  `json:"related_keywords"`
}

// KeywordEntry is one learned keyword in the aggregate.
type KeywordEntry struct {
	Count      int       `json:"count"`
	LastSeen   time.Time `json:"last_seen"`
	Category   string    `json:"category"`
	Importance int       `json:"importance"`
}

// URLEntry is one learned URL in the aggregate.
type URLEntry struct {
	Visits       int       `json:"visits"`
	LastVisited  time.Time `json:"last_visited"`
	Category     string    `json:"category"`
	SafetyRating string    `json:"safety_rating"`
}

// Aggregate is the durable per-user accumulation of knowledge. Keys are
// normalized (lowercase categories/keywords, canonical URLs).
type Aggregate struct {
	UserID      string                   `json:"user_id"`
	Categories  map[string]CategoryEntry `json:"categories"`
	Keywords    map[string]KeywordEntry  `json:"keywords"`
	URLs        map[string]URLEntry      `json:"urls"`
	LastUpdated time.Time                `json:"last_updated"`
}

// MergeAnalysis folds one sanitized analysis into userID's aggregate:
// the category's count goes up by one and absorbs the keywords, each
// keyword's count goes up by one (importance and category untouched after
// creation), each URL's visit count goes up by one (safety rating
// untouched after creation). Counters only ever increase.
//
// Behaves as if under a single-writer lock per user: concurrent merges
// for the same user never lose an increment.
func (s *Store) MergeAnalysis(ctx context.Context, userID string, a *extract.CaptureAnalysis) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if a == nil {
		return fmt.Errorf("analysis cannot be nil")
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	now := nowUTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning merge transaction: %w", err)
	}
	defer tx.Rollback()

	if err := mergeCategory(ctx, tx, userID, a, now); err != nil {
		return err
	}
	for _, kw := range a.Keywords {
		if err := mergeKeyword(ctx, tx, userID, kw, a.Category, now); err != nil {
			return err
		}
	}
	for _, u := range a.URLs {
		if err := mergeURL(ctx, tx, userID, u, a.Category, now); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO knowledge_state (user_id, last_updated) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET last_updated = excluded.last_updated`,
		userID, now,
	)
	if err != nil {
		return fmt.Errorf("updating aggregate timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	return nil
}

func mergeCategory(ctx context.Context, tx *sql.Tx, userID string, a *extract.CaptureAnalysis, now time.Time) error {
	name := strings.ToLower(strings.TrimSpace(a.Category))
	if name == "" {
		return nil
	}

	var relatedJSON string
	err := tx.QueryRowContext(ctx,
		`SELECT related_keywords FROM knowledge_categories WHERE user_id = ? AND name = ?`,
		userID, name,
	).Scan(&relatedJSON)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_categories (user_id, name, count, last_seen, related_keywords)
			 VALUES (?, ?, 1, ?, ?)`,
			userID, name, now, marshalStrings(a.Keywords),
		)
		if err != nil {
			return fmt.Errorf("inserting category %q: %w", name, err)
		}
	case err != nil:
		return fmt.Errorf("reading category %q: %w", name, err)
	default:
		related := unionStrings(unmarshalStrings(relatedJSON), a.Keywords)
		_, err = tx.ExecContext(ctx,
			`UPDATE knowledge_categories
			 SET count = count + 1,
			     last_seen = MAX(last_seen, ?),
			     related_keywords = ?
			 WHERE user_id = ? AND name = ?`,
			now, marshalStrings(related), userID, name,
		)
		if err != nil {
			return fmt.Errorf("updating category %q: %w", name, err)
		}
	}
	return nil
}

func mergeKeyword(ctx context.Context, tx *sql.Tx, userID, keyword, category string, now time.Time) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil
	}

	// Importance and category are set at creation only; merges never
	// carry them, so a repeat merge touches count and recency alone.
	res, err := tx.ExecContext(ctx,
		`UPDATE knowledge_keywords
		 SET count = count + 1, last_seen = MAX(last_seen, ?)
		 WHERE user_id = ? AND keyword = ?`,
		now, userID, keyword,
	)
	if err != nil {
		return fmt.Errorf("updating keyword %q: %w", keyword, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_keywords (user_id, keyword, count, last_seen, category, importance)
			 VALUES (?, ?, 1, ?, ?, ?)`,
			userID, keyword, now, category, DefaultKeywordImportance,
		)
		if err != nil {
			return fmt.Errorf("inserting keyword %q: %w", keyword, err)
		}
	}
	return nil
}

func mergeURL(ctx context.Context, tx *sql.Tx, userID, rawURL, category string, now time.Time) error {
	u, ok := extract.NormalizeURL(rawURL)
	if !ok {
		return nil
	}

	// safety_rating is deliberately not in the UPDATE: flagged stays
	// flagged, and safe/unknown keep whatever they had.
	res, err := tx.ExecContext(ctx,
		`UPDATE knowledge_urls
		 SET visits = visits + 1, last_visited = MAX(last_visited, ?)
		 WHERE user_id = ? AND url = ?`,
		now, userID, u,
	)
	if err != nil {
		return fmt.Errorf("updating url %q: %w", u, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO knowledge_urls (user_id, url, visits, last_visited, category, safety_rating)
			 VALUES (?, ?, 1, ?, ?, ?)`,
			userID, u, now, category, SafetyUnknown,
		)
		if err != nil {
			return fmt.Errorf("inserting url %q: %w", u, err)
		}
	}
	return nil
}

// Aggregate returns a consistent snapshot of userID's knowledge. All three
// collections are read inside one transaction, so a concurrent merge is
// either fully visible or not at all.
func (s *Store) Aggregate(ctx context.Context, userID string) (*Aggregate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning snapshot read: %w", err)
	}
	defer tx.Rollback()

	agg := &Aggregate{
		UserID:     userID,
		Categories: map[string]CategoryEntry{},
		Keywords:   map[string]KeywordEntry{},
		URLs:       map[string]URLEntry{},
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT name, count, last_seen, related_keywords
		 FROM knowledge_categories WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	for rows.Next() {
		var name, relatedJSON string
		var e CategoryEntry
		if err := rows.Scan(&name, &e.Count, &e.LastSeen, &relatedJSON); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		e.RelatedKeywords = unmarshalStrings(relatedJSON)
		agg.Categories[name] = e
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT keyword, count, last_seen, category, importance
		 FROM knowledge_keywords WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("reading keywords: %w", err)
	}
	for rows.Next() {
		var keyword string
		var e KeywordEntry
		if err := rows.Scan(&keyword, &e.Count, &e.LastSeen, &e.Category, &e.Importance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning keyword: %w", err)
		}
		agg.Keywords[keyword] = e
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx,
		`SELECT url, visits, last_visited, category, safety_rating
		 FROM knowledge_urls WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("reading urls: %w", err)
	}
	for rows.Next() {
		var u string
		var e URLEntry
		if err := rows.Scan(&u, &e.Visits, &e.LastVisited, &e.Category, &e.SafetyRating); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		agg.URLs[u] = e
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	var lastUpdated sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT last_updated FROM knowledge_state WHERE user_id = ?`, userID,
	).Scan(&lastUpdated)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("reading aggregate timestamp: %w", err)
	}
	if lastUpdated.Valid {
		agg.LastUpdated = lastUpdated.Time
	}

	return agg, nil
}

// SetKeywordImportance is the explicit override for a keyword's
// importance (1-10). This is the only way importance changes after
// creation.
func (s *Store) SetKeywordImportance(ctx context.Context, userID, keyword string, importance int) error {
	if importance < 1 || importance > 10 {
		return fmt.Errorf("importance must be 1-10, got %d", importance)
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_keywords SET importance = ? WHERE user_id = ? AND keyword = ?`,
		importance, userID, keyword,
	)
	if err != nil {
		return fmt.Errorf("setting importance for %q: %w", keyword, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("keyword %q not found for user %s", keyword, userID)
	}
	return nil
}

// SetURLSafety is the explicit override for a URL's safety rating. It is
// the only path that can clear a flagged rating.
func (s *Store) SetURLSafety(ctx context.Context, userID, rawURL, rating string) error {
	if rating != SafetySafe && rating != SafetyUnknown && rating != SafetyFlagged {
		return fmt.Errorf("invalid safety rating %q (valid: safe, unknown, flagged)", rating)
	}
	u, ok := extract.NormalizeURL(rawURL)
	if !ok {
		return fmt.Errorf("invalid url %q", rawURL)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE knowledge_urls SET safety_rating = ? WHERE user_id = ? AND url = ?`,
		rating, userID, u,
	)
	if err != nil {
		return fmt.Errorf("setting safety for %q: %w", u, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("url %q not found for user %s", u, userID)
	}
	return nil
}

// marshalStrings encodes a string slice as JSON, never failing.
func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalStrings(raw string) []string {
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return []string{}
	}
	return ss
}

// unionStrings merges b into a, deduplicating and sorting for stable
// storage.
func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
