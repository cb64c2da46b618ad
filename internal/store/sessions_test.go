package store

import (
	"context"
	"testing"
	"time"

	"github.com/glimpsehq/glimpse/internal/extract"
)

func TestCreateAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", UserID: "alice"}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if sess.StartedAt.IsZero() {
		t.Error("StartedAt should be filled in")
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.UserID != "alice" || got.EndedAt != nil || got.Report != nil {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestOneActiveSessionPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &Session{ID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// The partial unique index rejects a second active session.
	if err := s.CreateSession(ctx, &Session{ID: "s2", UserID: "alice"}); err == nil {
		t.Fatal("expected second active session to be rejected")
	}
	// A different user is unaffected.
	if err := s.CreateSession(ctx, &Session{ID: "s3", UserID: "bob"}); err != nil {
		t.Fatalf("create for other user failed: %v", err)
	}

	// Once ended, a new session for the same user is allowed.
	if err := s.EndSession(ctx, "s1", extract.EmptyReport(), nowUTC()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if err := s.CreateSession(ctx, &Session{ID: "s4", UserID: "alice"}); err != nil {
		t.Fatalf("create after end failed: %v", err)
	}
}

func TestActiveSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.ActiveSession(ctx, "alice")
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected no active session, got %+v", got)
	}

	if err := s.CreateSession(ctx, &Session{ID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err = s.ActiveSession(ctx, "alice")
	if err != nil {
		t.Fatalf("active lookup failed: %v", err)
	}
	if got == nil || got.ID != "s1" {
		t.Errorf("active session = %+v, want s1", got)
	}
}

func TestEndSessionStoresReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &Session{ID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	report := &extract.CaptureAnalysis{
		Category: "gaming",
		Keywords: []string{"minecraft"},
		Summary:  "Played Minecraft.",
	}
	endedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if err := s.EndSession(ctx, "s1", report, endedAt); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(endedAt) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, endedAt)
	}
	if got.Report == nil || got.Report.Category != "gaming" {
		t.Errorf("report = %+v, want gaming", got.Report)
	}

	// Ending twice fails.
	if err := s.EndSession(ctx, "s1", report, endedAt); err == nil {
		t.Error("expected error ending an ended session")
	}
}

func TestAppendCaptureSequencing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, &Session{ID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	texts := []string{"first", "second", "third"}
	for _, txt := range texts {
		c := &Capture{SessionID: "s1", Text: txt, Analysis: &extract.CaptureAnalysis{Category: "coding"}}
		if err := s.AppendCapture(ctx, c); err != nil {
			t.Fatalf("append %q failed: %v", txt, err)
		}
	}

	captures, err := s.ListCaptures(ctx, "s1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(captures) != 3 {
		t.Fatalf("got %d captures, want 3", len(captures))
	}
	for i, c := range captures {
		if c.Seq != i+1 {
			t.Errorf("capture %d seq = %d, want %d", i, c.Seq, i+1)
		}
		if c.Text != texts[i] {
			t.Errorf("capture %d text = %q, want %q", i, c.Text, texts[i])
		}
		if c.Analysis == nil || c.Analysis.Category != "coding" {
			t.Errorf("capture %d analysis = %+v", i, c.Analysis)
		}
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"s1", "s2", "s3"} {
		sess := &Session{ID: id, UserID: "alice", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
		if err := s.EndSession(ctx, id, extract.EmptyReport(), sess.StartedAt.Add(30*time.Minute)); err != nil {
			t.Fatalf("end %s failed: %v", id, err)
		}
	}

	sessions, err := s.ListSessions(ctx, "alice")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions, want 3", len(sessions))
	}
	want := []string{"s3", "s2", "s1"}
	for i, sess := range sessions {
		if sess.ID != want[i] {
			t.Errorf("sessions[%d] = %s, want %s", i, sess.ID, want[i])
		}
	}
}

func TestSessionReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// One ended with a report, one still active.
	if err := s.CreateSession(ctx, &Session{ID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	report := &extract.CaptureAnalysis{Category: "sports", Keywords: []string{"football"}}
	if err := s.EndSession(ctx, "s1", report, nowUTC()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if err := s.CreateSession(ctx, &Session{ID: "s2", UserID: "alice"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reports, err := s.SessionReports(ctx, "alice")
	if err != nil {
		t.Fatalf("reports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Analysis == nil || reports[0].Analysis.Category != "sports" {
		t.Errorf("unexpected report: %+v", reports[0])
	}
}
