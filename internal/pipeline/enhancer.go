// Package pipeline orchestrates prompt enhancement: context gathering,
// concurrent style rewrites, scoring, and profile learning.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/promptd/promptd/internal/injection"
	"github.com/promptd/promptd/internal/llm"
	"github.com/promptd/promptd/internal/profile"
	"github.com/promptd/promptd/internal/storage"
)

// ErrEmptyInput is returned when the user input is empty or whitespace.
var ErrEmptyInput = errors.New("input is required")

const (
	defaultGenerateTimeout = 30 * time.Second
	defaultScoreTimeout    = 10 * time.Second
)

// EnhancementLog persists one record per multi-style run. Implemented by
// storage.Store.
type EnhancementLog interface {
	SaveEnhancement(rec storage.EnhancementRecord) error
}

// Options tune per-call model timeouts. Zero values pick the defaults.
type Options struct {
	GenerateTimeout time.Duration
	ScoreTimeout    time.Duration
}

// Enhancer runs the enhancement pipeline. Generation failures are fatal for
// a request; scoring failures degrade to a fallback score.
type Enhancer struct {
	llm      llm.Client
	profiles *profile.Manager
	injector *injection.Injector
	log      EnhancementLog // optional

	genTimeout   time.Duration
	scoreTimeout time.Duration
}

// NewEnhancer wires the pipeline. log may be nil to disable the run log.
func NewEnhancer(client llm.Client, profiles *profile.Manager, injector *injection.Injector, log EnhancementLog, opts Options) *Enhancer {
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = defaultGenerateTimeout
	}
	if opts.ScoreTimeout <= 0 {
		opts.ScoreTimeout = defaultScoreTimeout
	}
	return &Enhancer{
		llm:          client,
		profiles:     profiles,
		injector:     injector,
		log:          log,
		genTimeout:   opts.GenerateTimeout,
		scoreTimeout: opts.ScoreTimeout,
	}
}

// Enhancement is one scored rewrite variant.
type Enhancement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
	Score       int    `json:"score"`
}

// ContextPreview is a truncated view of a gathered context item.
type ContextPreview struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ProfileSummary is the compact profile view returned with results.
type ProfileSummary struct {
	TotalPrompts int      `json:"totalPrompts"`
	AverageScore float64  `json:"averageScore"`
	CommonTopics []string `json:"commonTopics"`
}

// MultiResult is the outcome of a multi-style enhancement run.
type MultiResult struct {
	Enhancements      []Enhancement    `json:"enhancements"`
	Contexts          []ContextPreview `json:"contexts"`
	PersonalizedHints []string         `json:"personalizedHints"`
	UserProfile       ProfileSummary   `json:"userProfile"`
}

// EnhanceMulti rewrites the input in all styles concurrently, scores each
// variant, and folds the interaction into the user's profile. The three
// enhancements always come back in style order, whatever order the model
// calls complete in.
func (e *Enhancer) EnhanceMulti(ctx context.Context, userID, input string) (*MultiResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	// Gather context items and personalization hints concurrently.
	var (
		items []injection.Item
		hints []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = e.injector.Gather(gctx, input, userID)
		return err
	})
	g.Go(func() error {
		hints = e.profiles.Hints(userID, input)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("gathering context: %w", err)
	}

	augmented := injection.Render(input, items)

	// Generate all style variants. Strict join: the first failure (or hung
	// call past the timeout) fails the whole request.
	texts := make([]string, len(styles))
	g, gctx = errgroup.WithContext(ctx)
	for i, s := range styles {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.genTimeout)
			defer cancel()

			text, err := e.llm.Generate(callCtx,
				[]llm.Message{{Role: "user", Content: stylePrompt(s, augmented, hints)}},
				llm.WithTemperature(s.Temperature),
			)
			if err != nil {
				return fmt.Errorf("generating %s variant: %w", s.ID, err)
			}
			if text == "" {
				text = augmented
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Score each variant. Tolerant join: failures, timeouts, and junk
	// responses all degrade to the fallback score.
	scores := e.scoreAll(ctx, input, texts)

	enhancements := make([]Enhancement, len(styles))
	for i, s := range styles {
		enhancements[i] = Enhancement{
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Prompt:      texts[i],
			Score:       scores[i],
		}
	}

	sum := 0
	for _, s := range scores {
		sum += s
	}
	avg := float64(sum) / float64(len(scores))

	// The professional variant is the retained representative for profile
	// learning.
	if err := e.profiles.RecordInteraction(userID, input, texts[0], avg); err != nil {
		slog.Warn("pipeline: recording interaction failed", "user", userID, "error", err)
	}

	if e.log != nil {
		rec := storage.EnhancementRecord{
			ID:        uuid.New().String(),
			UserID:    userID,
			Input:     input,
			BestStyle: bestStyle(enhancements),
			AvgScore:  int(avg),
			CreatedAt: time.Now().UTC(),
		}
		if err := e.log.SaveEnhancement(rec); err != nil {
			slog.Warn("pipeline: saving enhancement record failed", "user", userID, "error", err)
		}
	}

	p := e.profiles.Get(userID)
	topics := p.Patterns.CommonTopics
	if len(topics) > 3 {
		topics = topics[:3]
	}

	return &MultiResult{
		Enhancements:      enhancements,
		Contexts:          previews(items),
		PersonalizedHints: hints,
		UserProfile: ProfileSummary{
			TotalPrompts: p.Stats.TotalPrompts,
			AverageScore: p.Stats.AverageScore,
			CommonTopics: topics,
		},
	}, nil
}

// scoreAll grades each variant concurrently against the original input.
// Every slot gets a score: fallback on call error, timeout, or unparsable
// response.
func (e *Enhancer) scoreAll(ctx context.Context, original string, texts []string) []int {
	scores := make([]int, len(texts))
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, e.scoreTimeout)
			defer cancel()

			resp, err := e.llm.Generate(callCtx,
				[]llm.Message{{Role: "user", Content: scorePrompt(original, text)}},
				llm.WithTemperature(0.2),
			)
			if err != nil {
				slog.Warn("pipeline: scoring call failed, using fallback", "style", styles[i].ID, "error", err)
				scores[i] = fallbackScore
				return
			}

			score, err := parseScore(resp)
			if err != nil {
				slog.Debug("pipeline: unparsable score, using fallback", "style", styles[i].ID, "error", err)
			}
			scores[i] = score
		}()
	}
	wg.Wait()
	return scores
}

// Analysis is the single-path critique of the original prompt.
type Analysis struct {
	Issues      []string `json:"issues"`
	Strengths   []string `json:"strengths"`
	Suggestions []string `json:"suggestions"`
	Score       int      `json:"score"`
}

// fallbackAnalysis stands in when the critique cannot be obtained.
func fallbackAnalysis() Analysis {
	return Analysis{
		Issues:      []string{"Unable to analyze prompt"},
		Strengths:   []string{},
		Suggestions: []string{"Try being more specific"},
		Score:       50,
	}
}

// SingleResult is the outcome of a single-path enhancement.
type SingleResult struct {
	EnhancedPrompt string   `json:"enhancedPrompt"`
	Analysis       Analysis `json:"analysis"`
	OriginalInput  string   `json:"originalInput"`
}

// EnhanceSingle critiques the input and produces one general rewrite. The
// critique degrades to a fallback on any failure; a rewrite failure fails
// the request.
func (e *Enhancer) EnhanceSingle(ctx context.Context, input string) (*SingleResult, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	analysis := e.analyze(ctx, input)

	callCtx, cancel := context.WithTimeout(ctx, e.genTimeout)
	defer cancel()

	enhanced, err := e.llm.Generate(callCtx,
		[]llm.Message{{Role: "user", Content: enhancementPrompt(input)}},
		llm.WithTemperature(0.7),
	)
	if err != nil {
		return nil, fmt.Errorf("enhancing prompt: %w", err)
	}
	if enhanced == "" {
		enhanced = input
	}

	return &SingleResult{
		EnhancedPrompt: enhanced,
		Analysis:       analysis,
		OriginalInput:  input,
	}, nil
}

func (e *Enhancer) analyze(ctx context.Context, input string) Analysis {
	callCtx, cancel := context.WithTimeout(ctx, e.scoreTimeout)
	defer cancel()

	resp, err := e.llm.Generate(callCtx,
		[]llm.Message{{Role: "user", Content: analysisPrompt(input)}},
		llm.WithTemperature(0.3),
	)
	if err != nil {
		slog.Warn("pipeline: analysis call failed, using fallback", "error", err)
		return fallbackAnalysis()
	}

	s := stripFences(resp)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return fallbackAnalysis()
	}

	var a Analysis
	if err := json.Unmarshal([]byte(s[start:end+1]), &a); err != nil {
		slog.Debug("pipeline: unparsable analysis, using fallback", "error", err)
		return fallbackAnalysis()
	}
	a.Score = clampScore(a.Score)
	if a.Issues == nil {
		a.Issues = []string{}
	}
	if a.Strengths == nil {
		a.Strengths = []string{}
	}
	if a.Suggestions == nil {
		a.Suggestions = []string{}
	}
	return a
}

// bestStyle returns the ID of the highest-scoring enhancement; ties keep
// style order.
func bestStyle(enhancements []Enhancement) string {
	best := enhancements[0]
	for _, e := range enhancements[1:] {
		if e.Score > best.Score {
			best = e
		}
	}
	return best.ID
}

// previews truncates context contents to 100 runes for the response.
func previews(items []injection.Item) []ContextPreview {
	out := make([]ContextPreview, len(items))
	for i, item := range items {
		content := item.Content
		if runes := []rune(content); len(runes) > 100 {
			content = string(runes[:100])
		}
		out[i] = ContextPreview{Type: item.Kind, Content: content + "..."}
	}
	return out
}
