// Package extract turns raw OCR capture text into structured knowledge
// signals for Glimpse.
//
// It owns the CaptureAnalysis model, URL extraction, and the LLM-backed
// classifier. Classifier output is never trusted as-is: every analysis
// passes through Sanitize before anything downstream sees it.
package extract

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Categories is the closed category set. Every analysis lands in exactly
// one of these; anything else the classifier invents is replaced with
// DefaultCategory.
var Categories = []string{
	"entertainment",
	"sports",
	"gaming",
	"coding",
	"adult",
}

// DefaultCategory is the fallback for unknown or missing categories.
const DefaultCategory = "entertainment"

const (
	// MaxTopics caps the topic list after filtering.
	MaxTopics = 15

	// MaxKeywords caps the keyword list after filtering.
	MaxKeywords = 30

	// MaxSummaryLen caps the summary. Kept above the highest
	// summary-length confidence threshold so the ladder stays reachable.
	MaxSummaryLen = 1000

	// minTermLen drops noise tokens the OCR layer tends to produce.
	minTermLen = 3
)

// stopTerms are generic words that carry no signal as keywords or topics.
var stopTerms = map[string]struct{}{
	"content":  {},
	"website":  {},
	"page":     {},
	"screen":   {},
	"online":   {},
	"click":    {},
	"internet": {},
}

// Mode selects the classifier prompt framing.
type Mode string

const (
	// ModeCapture analyzes a single screen capture.
	ModeCapture Mode = "capture"
	// ModeSession analyzes the concatenated text of a whole session.
	ModeSession Mode = "session"
)

// CaptureAnalysis is the structured result of classifying one capture or
// one full session. Immutable after Sanitize.
type CaptureAnalysis struct {
	Category   string   `json:"category"`
	Topics     []string `json:"topics"`
	Keywords   []string `json:"keywords"`
	URLs       []string `json:"urls"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"confidence"`
}

// SeedHints is the predefined knowledge handed to the classifier so it
// biases toward terms the aggregate already tracks.
type SeedHints struct {
	Keywords []string
	URLs     []string
}

// ValidCategory reports whether name is in the closed category set.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Sanitize clamps a raw analysis in place: unknown category replaced,
// term lists filtered and truncated, summary bounded, URLs normalized,
// and confidence recomputed from scratch. Safe to call on any classifier
// output, however malformed.
func Sanitize(a *CaptureAnalysis) {
	a.Category = strings.ToLower(strings.TrimSpace(a.Category))
	if !ValidCategory(a.Category) {
		a.Category = DefaultCategory
	}

	a.Topics = filterTerms(a.Topics, MaxTopics)
	a.Keywords = filterTerms(a.Keywords, MaxKeywords)

	a.Summary = strings.TrimSpace(a.Summary)
	if len(a.Summary) > MaxSummaryLen {
		cut := MaxSummaryLen
		// Back up so the cut never splits a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(a.Summary[cut]) {
			cut--
		}
		a.Summary = a.Summary[:cut]
	}

	normalized := make([]string, 0, len(a.URLs))
	seen := map[string]struct{}{}
	for _, raw := range a.URLs {
		u, ok := NormalizeURL(raw)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		normalized = append(normalized, u)
	}
	sort.Strings(normalized)
	a.URLs = normalized

	a.Confidence = ComputeConfidence(a)
}

// ComputeConfidence scores an analysis from its own shape. The classifier's
// self-reported confidence is ignored; richer output earns a higher score.
func ComputeConfidence(a *CaptureAnalysis) float64 {
	const step = 0.05
	conf := 0.5

	thresholds := []bool{
		len(a.Keywords) > 5,
		len(a.Keywords) > 10,
		len(a.URLs) > 0,
		len(a.URLs) > 3,
		len(a.Summary) > 200,
		len(a.Summary) > 500,
		len(a.Topics) > 3,
		len(a.Topics) > 7,
	}
	for _, hit := range thresholds {
		if hit {
			conf += step
		}
	}

	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// EmptyReport is the fixed "no analysis" result used when a session ends
// without any capture text. Never produced by the classifier.
func EmptyReport() *CaptureAnalysis {
	a := &CaptureAnalysis{
		Category: DefaultCategory,
		Topics:   []string{},
		Keywords: []string{},
		URLs:     []string{},
		Summary:  "No activity captured during this session.",
	}
	a.Confidence = ComputeConfidence(a)
	return a
}

// filterTerms lowercases, trims, drops short and stop-listed entries,
// dedups, and truncates to max. Order of first appearance is kept.
func filterTerms(terms []string, max int) []string {
	out := make([]string, 0, len(terms))
	seen := map[string]struct{}{}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if len(t) < minTermLen {
			continue
		}
		if _, stop := stopTerms[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	return out
}
