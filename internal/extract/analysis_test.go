package extract

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeCategory(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid", "coding", "coding"},
		{"valid mixed case", "  Sports ", "sports"},
		{"unknown", "productivity", DefaultCategory},
		{"empty", "", DefaultCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &CaptureAnalysis{Category: tt.in}
			Sanitize(a)
			if a.Category != tt.want {
				t.Errorf("category = %q, want %q", a.Category, tt.want)
			}
		})
	}
}

func TestSanitizeFiltersTerms(t *testing.T) {
	a := &CaptureAnalysis{
		Category: "coding",
		Keywords: []string{"Golang", "golang", "go", "website", "  sqlite  ", ""},
		Topics:   []string{"content", "compilers"},
	}
	Sanitize(a)

	// "Golang" and "golang" collapse, "go" is too short, "website" is
	// stop-listed, empty dropped.
	want := []string{"golang", "sqlite"}
	if !reflect.DeepEqual(a.Keywords, want) {
		t.Errorf("keywords = %v, want %v", a.Keywords, want)
	}
	if !reflect.DeepEqual(a.Topics, []string{"compilers"}) {
		t.Errorf("topics = %v, want [compilers]", a.Topics)
	}
}

func TestSanitizeClampsLists(t *testing.T) {
	a := &CaptureAnalysis{Category: "gaming"}
	for i := 0; i < 50; i++ {
		a.Keywords = append(a.Keywords, strings.Repeat("k", 3)+string(rune('a'+i)))
		a.Topics = append(a.Topics, strings.Repeat("t", 3)+string(rune('a'+i)))
	}
	a.Summary = strings.Repeat("x", 2*MaxSummaryLen)
	Sanitize(a)

	if len(a.Keywords) != MaxKeywords {
		t.Errorf("keywords len = %d, want %d", len(a.Keywords), MaxKeywords)
	}
	if len(a.Topics) != MaxTopics {
		t.Errorf("topics len = %d, want %d", len(a.Topics), MaxTopics)
	}
	if len(a.Summary) != MaxSummaryLen {
		t.Errorf("summary len = %d, want %d", len(a.Summary), MaxSummaryLen)
	}
}

func TestSanitizeSummaryTruncatesOnRuneBoundary(t *testing.T) {
	// "é" straddles the byte limit; the cut must not split it.
	a := &CaptureAnalysis{
		Category: "coding",
		Summary:  strings.Repeat("x", MaxSummaryLen-1) + "é日本語",
	}
	Sanitize(a)

	if !utf8.ValidString(a.Summary) {
		t.Fatalf("truncated summary is invalid UTF-8 (len=%d)", len(a.Summary))
	}
	if len(a.Summary) > MaxSummaryLen {
		t.Errorf("summary len = %d, want <= %d", len(a.Summary), MaxSummaryLen)
	}
	if want := strings.Repeat("x", MaxSummaryLen-1); a.Summary != want {
		t.Errorf("summary = %q..., want %d plain chars", a.Summary[:20], MaxSummaryLen-1)
	}
}

func TestSanitizeURLs(t *testing.T) {
	a := &CaptureAnalysis{
		Category: "coding",
		URLs: []string{
			"HTTPS://GitHub.com/",
			"https://github.com",
			"ftp://example.com",
			"not a url",
			"https://news.ycombinator.com/item?id=1",
		},
	}
	Sanitize(a)

	want := []string{"https://github.com", "https://news.ycombinator.com/item?id=1"}
	if !reflect.DeepEqual(a.URLs, want) {
		t.Errorf("urls = %v, want %v", a.URLs, want)
	}
}

func TestComputeConfidence(t *testing.T) {
	tests := []struct {
		name string
		a    CaptureAnalysis
		want float64
	}{
		{"empty", CaptureAnalysis{}, 0.5},
		{"one url", CaptureAnalysis{URLs: make([]string, 1)}, 0.55},
		{"six keywords", CaptureAnalysis{Keywords: make([]string, 6)}, 0.55},
		{"eleven keywords", CaptureAnalysis{Keywords: make([]string, 11)}, 0.6},
		{
			"everything",
			CaptureAnalysis{
				Keywords: make([]string, 11),
				URLs:     make([]string, 4),
				Topics:   make([]string, 8),
				Summary:  strings.Repeat("s", 501),
			},
			0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeConfidence(&tt.a)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("confidence = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeIgnoresSelfReportedConfidence(t *testing.T) {
	a := &CaptureAnalysis{Category: "coding", Confidence: 0.99}
	Sanitize(a)
	if a.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 for empty analysis", a.Confidence)
	}
}

func TestEmptyReport(t *testing.T) {
	r := EmptyReport()
	if r.Category != DefaultCategory {
		t.Errorf("category = %q, want %q", r.Category, DefaultCategory)
	}
	if r.Summary != "No activity captured during this session." {
		t.Errorf("unexpected summary: %q", r.Summary)
	}
	if len(r.Topics) != 0 || len(r.Keywords) != 0 || len(r.URLs) != 0 {
		t.Error("empty report must carry no terms or urls")
	}
	if r.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", r.Confidence)
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range Categories {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false", c)
		}
	}
	if ValidCategory("shopping") {
		t.Error("ValidCategory(shopping) = true, want false")
	}
}
