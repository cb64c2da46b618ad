package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/glimpsehq/glimpse/internal/llm"
)

// classifyTimeout bounds a single classifier call. On expiry the call
// degrades to a ClassificationError, never a session failure.
const classifyTimeout = 30 * time.Second

const classifySystemPrompt = `You are a screen-activity classification system. You receive OCR text captured from a user's screen and must produce a structured analysis.

CATEGORIES (pick exactly one):
- entertainment: movies, music, streaming, celebrities
- sports: matches, scores, teams, athletes
- gaming: games, levels, achievements, game stores
- coding: programming, repositories, documentation, developer tools
- adult: mature or 18+ content

RULES:
- Classify by the dominant subject of the text, not by isolated words
- Extract concrete topics and keywords; skip generic filler terms
- List any URLs that appear in the text
- Keep the summary brief and factual

Return ONLY a JSON object:
{
  "category": "one_of_the_categories",
  "topics": ["topic1", "topic2"],
  "keywords": ["keyword1", "keyword2"],
  "urls": ["url1", "url2"],
  "summary": "brief summary"
}`

// ClassificationError marks a soft classifier failure: the capture or
// session proceeds without that analysis.
type ClassificationError struct {
	Mode Mode
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification (%s) failed: %v", e.Mode, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Classifier maps raw text to a sanitized CaptureAnalysis.
// Implementations return (nil, nil) only for empty input.
type Classifier interface {
	Classify(ctx context.Context, text string, mode Mode, hints SeedHints) (*CaptureAnalysis, error)
}

// LLMClassifier implements Classifier on top of an llm.Provider.
type LLMClassifier struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewLLMClassifier wraps provider as a Classifier.
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider, timeout: classifyTimeout}
}

// Classify sends text to the LLM and sanitizes the structured result.
// Empty or whitespace-only text short-circuits to (nil, nil) without
// touching the provider. URLs found by local extraction are unioned into
// the result regardless of what the model returns.
func (c *LLMClassifier) Classify(ctx context.Context, text string, mode Mode, hints SeedHints) (*CaptureAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if c.provider == nil {
		return nil, &ClassificationError{Mode: mode, Err: fmt.Errorf("no LLM provider configured")}
	}

	foundURLs := ExtractURLs(text)
	prompt := buildClassifyPrompt(text, mode, hints, foundURLs)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := c.provider.Complete(callCtx, prompt, llm.CompletionOpts{
		Temperature: 0.1,
		MaxTokens:   1024,
		Format:      "json",
		System:      classifySystemPrompt,
	})
	if err != nil {
		return nil, &ClassificationError{Mode: mode, Err: err}
	}

	analysis, err := parseClassifyResponse(response)
	if err != nil {
		return nil, &ClassificationError{Mode: mode, Err: err}
	}

	analysis.URLs = append(analysis.URLs, foundURLs...)
	Sanitize(analysis)
	return analysis, nil
}

// buildClassifyPrompt constructs the user message. Seed hints bias the
// model toward terms the knowledge base already tracks.
func buildClassifyPrompt(text string, mode Mode, hints SeedHints, foundURLs []string) string {
	var sb strings.Builder

	if mode == ModeSession {
		sb.WriteString("Full session text:\n")
	} else {
		sb.WriteString("Current capture:\n")
	}
	sb.WriteString(text)
	sb.WriteString("\n\n")

	if len(foundURLs) > 0 {
		sb.WriteString("Found URLs: ")
		sb.WriteString(strings.Join(foundURLs, ", "))
		sb.WriteString("\n")
	} else {
		sb.WriteString("No URLs found\n")
	}

	if len(hints.Keywords) > 0 {
		sb.WriteString("Known keywords to consider: ")
		sb.WriteString(strings.Join(hints.Keywords, ", "))
		sb.WriteString("\n")
	}
	if len(hints.URLs) > 0 {
		sb.WriteString("Known URLs to consider: ")
		sb.WriteString(strings.Join(hints.URLs, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn the JSON analysis only.")
	return sb.String()
}

// parseClassifyResponse decodes the LLM's JSON, tolerating markdown code
// fences and prose around the object.
func parseClassifyResponse(raw string) (*CaptureAnalysis, error) {
	cleaned := stripCodeFences(raw)

	// Some models wrap the object in commentary; take the outermost braces.
	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	var a CaptureAnalysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, fmt.Errorf("invalid JSON from classifier: %w\nraw: %s", err, truncateForError(raw, 300))
	}
	return &a, nil
}

// stripCodeFences removes a surrounding ```...``` block if present.
func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	start, end := 0, len(lines)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if start == 0 {
				start = i + 1
			} else {
				end = i
				break
			}
		}
	}
	if start > 0 && end > start {
		return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
	}
	return cleaned
}

func truncateForError(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}
