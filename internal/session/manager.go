// Package session owns the monitoring-session state machine.
//
// A session moves Active → Ended and never back. Captures are only
// accepted while Active; ending classifies the whole session's text and
// commits the resulting report to the knowledge aggregate. A flaky
// classifier degrades captures to no-ops, never kills a session.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimpsehq/glimpse/internal/extract"
	"github.com/glimpsehq/glimpse/internal/store"
)

var (
	// ErrNotFound means the session id is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrActiveSession means the user already has an active session.
	ErrActiveSession = errors.New("user already has an active session")

	// ErrSessionEnded means the session has already ended.
	ErrSessionEnded = errors.New("session already ended")
)

// Config configures a Manager.
type Config struct {
	Store      *store.Store
	Classifier extract.Classifier

	// Hints bias the classifier toward known seed keywords and URLs.
	Hints extract.SeedHints

	// SuppressReportRemerge skips the session-report merge for keys the
	// session's own captures already merged. Off by default: the
	// double-count between per-capture merges and the report merge is
	// the compatible behavior.
	SuppressReportRemerge bool
}

// Manager drives session lifecycle and capture processing.
type Manager struct {
	store      *store.Store
	classifier extract.Classifier
	hints      extract.SeedHints
	suppress   bool

	// sessionLocks makes End mutually exclusive with RecordCapture for
	// the same session.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// nowUTC is stubbed in tests.
var nowUTC = func() time.Time { return time.Now().UTC() }

// NewManager wires a Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		hints:      cfg.Hints,
		suppress:   cfg.SuppressReportRemerge,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Start opens a new monitoring session for userID. At most one active
// session per user: a second Start without an intervening End fails with
// ErrActiveSession.
func (m *Manager) Start(ctx context.Context, userID string) (*store.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	active, err := m.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("starting session for %s: %w", userID, ErrActiveSession)
	}

	sess := &store.Session{
		ID:     uuid.NewString(),
		UserID: userID,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// CaptureResult reports what happened to one submitted capture. A soft
// classification failure sets Skipped and Warning; it is not an error.
type CaptureResult struct {
	Capture *store.Capture `json:"capture,omitempty"`
	Skipped bool           `json:"skipped"`
	Warning string         `json:"warning,omitempty"`
}

// RecordCapture classifies one capture and folds it into the session and
// the knowledge aggregate. Empty text and classifier failures are no-ops
// for the aggregate; the session stays Active either way.
func (m *Manager) RecordCapture(ctx context.Context, sessionID, text string) (*CaptureResult, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("recording capture: %w", ErrNotFound)
	}
	if sess.EndedAt != nil {
		return nil, fmt.Errorf("recording capture for %s: %w", sessionID, ErrSessionEnded)
	}

	if strings.TrimSpace(text) == "" {
		return &CaptureResult{Skipped: true, Warning: "empty capture text"}, nil
	}

	analysis, err := m.classifier.Classify(ctx, text, extract.ModeCapture, m.hints)
	if err != nil {
		var cerr *extract.ClassificationError
		if errors.As(err, &cerr) {
			return &CaptureResult{Skipped: true, Warning: cerr.Error()}, nil
		}
		return nil, err
	}
	if analysis == nil {
		return &CaptureResult{Skipped: true, Warning: "empty capture text"}, nil
	}

	capture := &store.Capture{
		SessionID: sessionID,
		Text:      text,
		Analysis:  analysis,
	}
	if err := m.store.AppendCapture(ctx, capture); err != nil {
		return nil, err
	}

	if err := m.store.MergeAnalysis(ctx, sess.UserID, analysis); err != nil {
		return nil, err
	}
	if err := m.store.LogAnalysis(ctx, sess.UserID, analysis); err != nil {
		return nil, err
	}

	return &CaptureResult{Capture: capture}, nil
}

// EndResult reports the outcome of ending a session. A soft
// classification failure sets Warning: the session still ends, carrying
// the fallback report, and nothing reaches the aggregate.
type EndResult struct {
	Session *store.Session `json:"session"`
	Warning string         `json:"warning,omitempty"`
}

// End closes an active session: the concatenated capture text is
// classified as a whole (mode=session), the result becomes the session's
// report and is merged into the aggregate. A session with no capture text
// gets the fixed empty report without a classifier call. End on an ended
// session fails with ErrSessionEnded; unknown ids fail with ErrNotFound.
// Neither failure touches the aggregate.
func (m *Manager) End(ctx context.Context, sessionID string) (*EndResult, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("ending session: %w", ErrNotFound)
	}
	if sess.EndedAt != nil {
		return nil, fmt.Errorf("ending session %s: %w", sessionID, ErrSessionEnded)
	}

	captures, err := m.store.ListCaptures(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, c := range captures {
		if strings.TrimSpace(c.Text) != "" {
			texts = append(texts, c.Text)
		}
	}
	fullText := strings.Join(texts, "\n")

	var report *extract.CaptureAnalysis
	var warning string

	if strings.TrimSpace(fullText) == "" {
		report = extract.EmptyReport()
	} else {
		report, err = m.classifier.Classify(ctx, fullText, extract.ModeSession, m.hints)
		if err != nil {
			var cerr *extract.ClassificationError
			if !errors.As(err, &cerr) {
				return nil, err
			}
			// Soft failure: the session still ends, with a fallback
			// report and no merge.
			warning = cerr.Error()
			report = &extract.CaptureAnalysis{
				Category: extract.DefaultCategory,
				Topics:   []string{},
				Keywords: []string{},
				URLs:     []string{},
				Summary:  "Analysis failed due to technical issues.",
			}
			report.Confidence = extract.ComputeConfidence(report)
		}
	}

	now := nowUTC()
	if err := m.store.EndSession(ctx, sessionID, report, now); err != nil {
		return nil, err
	}

	if warning == "" {
		merge := report
		if m.suppress {
			merge = pruneSeen(report, captures)
		}
		if merge != nil {
			if err := m.store.MergeAnalysis(ctx, sess.UserID, merge); err != nil {
				return nil, err
			}
			if err := m.store.LogAnalysis(ctx, sess.UserID, merge); err != nil {
				return nil, err
			}
		}
	}

	sess.EndedAt = &now
	sess.Report = report
	return &EndResult{Session: sess, Warning: warning}, nil
}

// List returns the user's sessions newest-first.
func (m *Manager) List(ctx context.Context, userID string) ([]*store.Session, error) {
	return m.store.ListSessions(ctx, userID)
}

// Get returns one session, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("getting session: %w", ErrNotFound)
	}
	return sess, nil
}

// pruneSeen strips the report of keywords and URLs this session's
// captures already merged. Returns nil when nothing new remains and the
// category was seen too, so End can skip the merge entirely.
func pruneSeen(report *extract.CaptureAnalysis, captures []*store.Capture) *extract.CaptureAnalysis {
	seenKW := map[string]struct{}{}
	seenURL := map[string]struct{}{}
	seenCat := map[string]struct{}{}
	for _, c := range captures {
		if c.Analysis == nil {
			continue
		}
		seenCat[c.Analysis.Category] = struct{}{}
		for _, kw := range c.Analysis.Keywords {
			seenKW[kw] = struct{}{}
		}
		for _, u := range c.Analysis.URLs {
			seenURL[u] = struct{}{}
		}
	}

	pruned := *report
	pruned.Keywords = nil
	pruned.URLs = nil
	for _, kw := range report.Keywords {
		if _, ok := seenKW[kw]; !ok {
			pruned.Keywords = append(pruned.Keywords, kw)
		}
	}
	for _, u := range report.URLs {
		if _, ok := seenURL[u]; !ok {
			pruned.URLs = append(pruned.URLs, u)
		}
	}

	_, catSeen := seenCat[report.Category]
	if catSeen && len(pruned.Keywords) == 0 && len(pruned.URLs) == 0 {
		return nil
	}
	return &pruned
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}
