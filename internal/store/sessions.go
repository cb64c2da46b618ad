package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glimpsehq/glimpse/internal/extract"
)

// Session is one bounded monitoring period. EndedAt nil means active.
// Report is set exactly once, at end.
type Session struct {
	ID        string                   `json:"id"`
	UserID    string                   `json:"user_id"`
	StartedAt time.Time                `json:"started_at"`
	EndedAt   *time.Time               `json:"ended_at,omitempty"`
	Report    *extract.CaptureAnalysis `json:"report,omitempty"`
}

// Capture is one analyzed OCR snapshot inside a session.
type Capture struct {
	ID        int64                    `json:"id"`
	SessionID string                   `json:"session_id"`
	Seq       int                      `json:"seq"`
	Text      string                   `json:"text"`
	Analysis  *extract.CaptureAnalysis `json:"analysis,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// CreateSession inserts a new active session. Fails if the user already
// has an active one (partial unique index on sessions).
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" || sess.UserID == "" {
		return fmt.Errorf("session id and user id are required")
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = nowUTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, started_at) VALUES (?, ?, ?)`,
		sess.ID, sess.UserID, sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess := &Session{}
	var endedAt sql.NullTime
	var reportJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, started_at, ended_at, report_json FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &endedAt, &reportJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}

	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if reportJSON.Valid && reportJSON.String != "" {
		var report extract.CaptureAnalysis
		if err := json.Unmarshal([]byte(reportJSON.String), &report); err == nil {
			sess.Report = &report
		}
	}
	return sess, nil
}

// ActiveSession returns the user's active session, or nil when none.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM sessions WHERE user_id = ? AND ended_at IS NULL`, userID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// EndSession marks a session ended and stores its report. The caller
// guarantees the session is active; the WHERE clause makes the transition
// idempotence-safe regardless.
func (s *Store) EndSession(ctx context.Context, id string, report *extract.CaptureAnalysis, endedAt time.Time) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, report_json = ? WHERE id = ? AND ended_at IS NULL`,
		endedAt, string(reportJSON), id,
	)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s is not active", id)
	}
	return nil
}

// AppendCapture stores one analyzed capture at the next sequence position.
func (s *Store) AppendCapture(ctx context.Context, c *Capture) error {
	if c.SessionID == "" {
		return fmt.Errorf("capture session id is required")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = nowUTC()
	}

	var analysisArg interface{}
	if c.Analysis != nil {
		b, err := json.Marshal(c.Analysis)
		if err != nil {
			return fmt.Errorf("encoding analysis: %w", err)
		}
		analysisArg = string(b)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (session_id, seq, text, analysis_json, created_at)
		 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?
		 FROM captures WHERE session_id = ?`,
		c.SessionID, c.Text, analysisArg, c.CreatedAt, c.SessionID,
	)
	if err != nil {
		return fmt.Errorf("inserting capture: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting capture id: %w", err)
	}
	c.ID = id
	return nil
}

// ListCaptures returns a session's captures in recorded order.
func (s *Store) ListCaptures(ctx context.Context, sessionID string) ([]*Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, text, analysis_json, created_at
		 FROM captures WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		c := &Capture{}
		var analysisJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Seq, &c.Text, &analysisJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning capture: %w", err)
		}
		if analysisJSON.Valid && analysisJSON.String != "" {
			var a extract.CaptureAnalysis
			if err := json.Unmarshal([]byte(analysisJSON.String), &a); err == nil {
				c.Analysis = &a
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSessions returns the user's sessions newest-first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE user_id = ? ORDER BY started_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ReportRecord pairs an ended session's report with its end time.
type ReportRecord struct {
	Analysis *extract.CaptureAnalysis
	EndedAt  time.Time
}

// SessionReports returns the stored reports of all ended sessions for a
// user, newest-first. Sessions that ended without a report are skipped.
func (s *Store) SessionReports(ctx context.Context, userID string) ([]ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report_json, ended_at FROM sessions
		 WHERE user_id = ? AND ended_at IS NOT NULL AND report_json IS NOT NULL
		 ORDER BY started_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing session reports: %w", err)
	}
	defer rows.Close()

	var out []ReportRecord
	for rows.Next() {
		var raw string
		var endedAt time.Time
		if err := rows.Scan(&raw, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		var a extract.CaptureAnalysis
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, ReportRecord{Analysis: &a, EndedAt: endedAt})
	}
	return out, rows.Err()
}
