package injection

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/promptd/promptd/internal/analysis"
	"github.com/promptd/promptd/internal/storage"
)

// Adapter produces context items for a prompt. Adapters are deterministic
// and make no model calls.
type Adapter interface {
	Gather(ctx context.Context, prompt, userID string) ([]Item, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// --- Project adapter ---

// codeTerms trigger the project adapter; any match marks the prompt as
// code-related.
var codeTerms = []string{"code", "function", "variable", "debug", "api", "programming", "algorithm", "database"}

// ProjectAdapter emits a single synthetic project-environment item for
// code-related prompts, relevance 0.9.
type ProjectAdapter struct {
	clock Clock
}

func NewProjectAdapter() *ProjectAdapter {
	return &ProjectAdapter{clock: realClock{}}
}

func (a *ProjectAdapter) Gather(_ context.Context, prompt, _ string) ([]Item, error) {
	if !isCodeRelated(prompt) {
		return nil, nil
	}
	info := projectInfo(prompt)
	if info == "" {
		return nil, nil
	}
	return []Item{{
		Kind:       KindProject,
		Source:     "current_project",
		Content:    info,
		Relevance:  0.9,
		ObservedAt: a.clock.Now(),
	}}, nil
}

func isCodeRelated(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, term := range codeTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func projectInfo(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "react") || strings.Contains(lower, "next"):
		return "Current project: Next.js 14 app with TypeScript, using Tailwind CSS and OpenAI API integration"
	case strings.Contains(lower, "api"):
		return "Current project: REST API with authentication endpoints and database integration"
	case strings.Contains(lower, "database"):
		return "Current project: Database schema includes users, messages, and enhancement_logs tables"
	default:
		return "General software development project"
	}
}

// --- History adapter ---

// HistoryReader provides per-user chat history. Implemented by storage.Store.
type HistoryReader interface {
	History(userID string) ([]storage.HistoryEntry, error)
}

// HistoryAdapter surfaces up to the last 3 past messages sharing more than
// two words with the prompt, relevance 0.7. Store failures are logged and
// yield no items rather than failing the gather.
type HistoryAdapter struct {
	history HistoryReader
	clock   Clock
}

func NewHistoryAdapter(history HistoryReader) *HistoryAdapter {
	return &HistoryAdapter{history: history, clock: realClock{}}
}

func (a *HistoryAdapter) Gather(_ context.Context, prompt, userID string) ([]Item, error) {
	entries, err := a.history.History(userID)
	if err != nil {
		slog.Warn("injection: history read failed, skipping", "user", userID, "error", err)
		return nil, nil
	}

	relevant := relevantHistory(entries, prompt)
	items := make([]Item, 0, len(relevant))
	for _, e := range relevant {
		items = append(items, Item{
			Kind:       KindHistory,
			Source:     "previous_conversation",
			Content:    `Previous discussion: "` + truncate(e.Content, 100) + `..."`,
			Relevance:  0.7,
			ObservedAt: e.Timestamp,
		})
	}
	return items, nil
}

// relevantHistory keeps messages whose word set shares more than two words
// with the prompt, returning at most the last 3 in original order.
func relevantHistory(entries []storage.HistoryEntry, prompt string) []storage.HistoryEntry {
	promptWords := make(map[string]struct{})
	for _, w := range strings.Split(strings.ToLower(prompt), " ") {
		promptWords[w] = struct{}{}
	}

	var matched []storage.HistoryEntry
	for _, e := range entries {
		common := 0
		seen := make(map[string]struct{})
		for _, w := range strings.Split(strings.ToLower(e.Content), " ") {
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			if _, ok := promptWords[w]; ok {
				common++
			}
		}
		if common > 2 {
			matched = append(matched, e)
		}
	}

	if len(matched) > 3 {
		matched = matched[len(matched)-3:]
	}
	return matched
}

// truncate keeps the first n runes; slicing by byte could split a
// multibyte character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// --- Domain adapter ---

// domainBlurbs maps each known domain to its best-practice context blurb.
var domainBlurbs = map[string]string{
	"coding":   "Best practices: Use clean code principles, proper error handling, and comprehensive documentation. Consider performance, security, and maintainability.",
	"writing":  "Writing guidelines: Use clear structure, engaging tone, proper grammar, and audience-appropriate language. Include compelling headlines and strong conclusions.",
	"business": "Business context: Focus on ROI, market analysis, competitive advantage, and stakeholder value. Consider scalability and risk management.",
	"design":   "Design principles: Follow user-centered design, accessibility standards, visual hierarchy, and consistent branding. Prioritize usability and aesthetics.",
	"data":     "Data analysis: Ensure data quality, use appropriate statistical methods, create clear visualizations, and provide actionable insights.",
}

// DomainAdapter emits one best-practice item for the prompt's domain,
// relevance 0.8. General-domain prompts yield nothing.
type DomainAdapter struct {
	clock Clock
}

func NewDomainAdapter() *DomainAdapter {
	return &DomainAdapter{clock: realClock{}}
}

func (a *DomainAdapter) Gather(_ context.Context, prompt, _ string) ([]Item, error) {
	domain := analysis.DetectDomain(prompt)
	blurb, ok := domainBlurbs[domain]
	if !ok {
		return nil, nil
	}
	return []Item{{
		Kind:       KindWeb,
		Source:     "domain_knowledge",
		Content:    blurb,
		Relevance:  0.8,
		ObservedAt: a.clock.Now(),
	}}, nil
}
