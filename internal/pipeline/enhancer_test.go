package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/promptd/promptd/internal/injection"
	"github.com/promptd/promptd/internal/llm"
	"github.com/promptd/promptd/internal/profile"
	"github.com/promptd/promptd/internal/storage"
)

// fakeLLM routes each call through respond, keyed on the prompt content.
type fakeLLM struct {
	respond func(ctx context.Context, content string, opts *llm.GenerateOptions) (string, error)
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)
	return f.respond(ctx, messages[len(messages)-1].Content, options)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, messages []llm.Message, onDelta func(string) error, opts ...llm.GenerateOption) error {
	resp, err := f.Generate(ctx, messages, opts...)
	if err != nil {
		return err
	}
	return onDelta(resp)
}

func (f *fakeLLM) Close() error { return nil }

type kvStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newKVStore() *kvStore {
	return &kvStore{data: make(map[string]string)}
}

func (s *kvStore) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *kvStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

type recordingLog struct {
	mu   sync.Mutex
	recs []storage.EnhancementRecord
	err  error
}

func (l *recordingLog) SaveEnhancement(rec storage.EnhancementRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.recs = append(l.recs, rec)
	return nil
}

// isScoreCall reports whether content is a scoring prompt.
func isScoreCall(content string) bool {
	return strings.Contains(content, `{"score": number}`)
}

func styleOf(content string) string {
	switch {
	case strings.Contains(content, "professional, structured prompt"):
		return "professional"
	case strings.Contains(content, "creative, engaging prompt"):
		return "creative"
	case strings.Contains(content, "technical, precise prompt"):
		return "technical"
	}
	return ""
}

func newTestEnhancer(f *fakeLLM, log EnhancementLog, opts Options) (*Enhancer, *profile.Manager) {
	profiles := profile.NewManager(newKVStore())
	injector := injection.NewInjector(injection.NewProjectAdapter(), injection.NewDomainAdapter())
	return NewEnhancer(f, profiles, injector, log, opts), profiles
}

func TestEnhanceMultiEmptyInput(t *testing.T) {
	e, _ := newTestEnhancer(&fakeLLM{}, nil, Options{})

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := e.EnhanceMulti(context.Background(), "u1", input); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("EnhanceMulti(%q): err = %v, want ErrEmptyInput", input, err)
		}
	}
}

func TestEnhanceMultiHappyPath(t *testing.T) {
	scoresByText := map[string]string{
		"professional out": `{"score": 90}`,
		"creative out":     `{"score": 70}`,
		"technical out":    `{"score": 85}`,
	}
	f := &fakeLLM{respond: func(_ context.Context, content string, opts *llm.GenerateOptions) (string, error) {
		if isScoreCall(content) {
			for text, resp := range scoresByText {
				if strings.Contains(content, text) {
					return resp, nil
				}
			}
			t.Errorf("score call for unknown text: %s", content)
			return `{"score": 0}`, nil
		}
		style := styleOf(content)
		if style == "" {
			t.Errorf("unexpected prompt: %s", content)
			return "", errors.New("unexpected prompt")
		}
		return style + " out", nil
	}}
	log := &recordingLog{}
	e, profiles := newTestEnhancer(f, log, Options{})

	res, err := e.EnhanceMulti(context.Background(), "u1", "help me debug my code")
	if err != nil {
		t.Fatalf("EnhanceMulti failed: %v", err)
	}

	if len(res.Enhancements) != 3 {
		t.Fatalf("got %d enhancements, want 3", len(res.Enhancements))
	}
	wantOrder := []string{"professional", "creative", "technical"}
	wantScores := []int{90, 70, 85}
	for i, enh := range res.Enhancements {
		if enh.ID != wantOrder[i] {
			t.Errorf("enhancement[%d].ID = %q, want %q", i, enh.ID, wantOrder[i])
		}
		if enh.Score != wantScores[i] {
			t.Errorf("enhancement[%d].Score = %d, want %d", i, enh.Score, wantScores[i])
		}
		if enh.Prompt != wantOrder[i]+" out" {
			t.Errorf("enhancement[%d].Prompt = %q", i, enh.Prompt)
		}
	}

	// Context previews: project (0.9) then domain (0.8) for a coding prompt.
	if len(res.Contexts) != 2 {
		t.Fatalf("got %d contexts, want 2", len(res.Contexts))
	}
	if res.Contexts[0].Type != injection.KindProject || res.Contexts[1].Type != injection.KindWeb {
		t.Errorf("context types = [%s %s]", res.Contexts[0].Type, res.Contexts[1].Type)
	}
	if !strings.HasSuffix(res.Contexts[0].Content, "...") {
		t.Errorf("context preview not truncated: %q", res.Contexts[0].Content)
	}

	// Profile learned from the run: avg (90+70+85)/3 > 80 keeps the
	// professional variant.
	p := profiles.Get("u1")
	if p.Stats.TotalPrompts != 1 {
		t.Errorf("TotalPrompts = %d, want 1", p.Stats.TotalPrompts)
	}
	wantAvg := float64(90+70+85) / 3
	if p.Stats.AverageScore != wantAvg {
		t.Errorf("AverageScore = %v, want %v", p.Stats.AverageScore, wantAvg)
	}
	if len(p.Patterns.SuccessfulEnhancements) != 1 || p.Patterns.SuccessfulEnhancements[0] != "professional out" {
		t.Errorf("SuccessfulEnhancements = %v, want [professional out]", p.Patterns.SuccessfulEnhancements)
	}

	// Response summary reflects the post-run profile.
	if res.UserProfile.TotalPrompts != 1 || res.UserProfile.AverageScore != wantAvg {
		t.Errorf("UserProfile summary = %+v", res.UserProfile)
	}

	// Run log captured the best style.
	if len(log.recs) != 1 {
		t.Fatalf("got %d log records, want 1", len(log.recs))
	}
	if log.recs[0].BestStyle != "professional" || log.recs[0].UserID != "u1" {
		t.Errorf("log record = %+v", log.recs[0])
	}
}

func TestEnhanceMultiFixedOrderUnderAdversarialTiming(t *testing.T) {
	// Technical finishes first, professional last; output order must not care.
	delays := map[string]time.Duration{
		"professional": 30 * time.Millisecond,
		"creative":     15 * time.Millisecond,
		"technical":    0,
	}
	f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if isScoreCall(content) {
			return `{"score": 80}`, nil
		}
		style := styleOf(content)
		time.Sleep(delays[style])
		return style + " out", nil
	}}
	e, _ := newTestEnhancer(f, nil, Options{})

	res, err := e.EnhanceMulti(context.Background(), "u1", "improve this prompt about gardening")
	if err != nil {
		t.Fatalf("EnhanceMulti failed: %v", err)
	}
	want := []string{"professional", "creative", "technical"}
	for i, enh := range res.Enhancements {
		if enh.ID != want[i] {
			t.Errorf("enhancement[%d].ID = %q, want %q", i, enh.ID, want[i])
		}
	}
}

func TestEnhanceMultiGenerationFailureIsFatal(t *testing.T) {
	f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if styleOf(content) == "creative" {
			return "", errors.New("model unavailable")
		}
		if isScoreCall(content) {
			return `{"score": 80}`, nil
		}
		return "out", nil
	}}
	e, profiles := newTestEnhancer(f, nil, Options{})

	if _, err := e.EnhanceMulti(context.Background(), "u1", "some prompt"); err == nil {
		t.Fatal("expected error when a generation fails")
	}

	// A failed run must not touch the profile.
	if p := profiles.Get("u1"); p.Stats.TotalPrompts != 0 {
		t.Errorf("TotalPrompts = %d after failed run, want 0", p.Stats.TotalPrompts)
	}
}

func TestEnhanceMultiScoringDegradesToFallback(t *testing.T) {
	tests := []struct {
		name      string
		scoreResp string
		scoreErr  error
		want      int
	}{
		{"unparsable reply", "not json", nil, 75},
		{"call error", "", errors.New("timeout"), 75},
		{"clamped high", `{"score": 150}`, nil, 100},
		{"clamped low", `{"score": -10}`, nil, 0},
		{"fenced json", "```json\n{\"score\": 88}\n```", nil, 88},
		{"filler around json", `Sure! Here you go: {"score": 42} Hope that helps.`, nil, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
				if isScoreCall(content) {
					return tt.scoreResp, tt.scoreErr
				}
				return styleOf(content) + " out", nil
			}}
			e, _ := newTestEnhancer(f, nil, Options{})

			res, err := e.EnhanceMulti(context.Background(), "u1", "some prompt")
			if err != nil {
				t.Fatalf("EnhanceMulti failed: %v", err)
			}
			for i, enh := range res.Enhancements {
				if enh.Score != tt.want {
					t.Errorf("enhancement[%d].Score = %d, want %d", i, enh.Score, tt.want)
				}
			}
		})
	}
}

func TestEnhanceMultiHungScoringUsesFallback(t *testing.T) {
	f := &fakeLLM{respond: func(ctx context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if isScoreCall(content) {
			<-ctx.Done() // never answers
			return "", ctx.Err()
		}
		return styleOf(content) + " out", nil
	}}
	e, _ := newTestEnhancer(f, nil, Options{ScoreTimeout: 20 * time.Millisecond})

	res, err := e.EnhanceMulti(context.Background(), "u1", "some prompt")
	if err != nil {
		t.Fatalf("EnhanceMulti failed: %v", err)
	}
	for i, enh := range res.Enhancements {
		if enh.Score != fallbackScore {
			t.Errorf("enhancement[%d].Score = %d, want %d", i, enh.Score, fallbackScore)
		}
	}
}

func TestEnhanceMultiHungGenerationFails(t *testing.T) {
	f := &fakeLLM{respond: func(ctx context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if styleOf(content) != "" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"score": 80}`, nil
	}}
	e, _ := newTestEnhancer(f, nil, Options{GenerateTimeout: 20 * time.Millisecond})

	if _, err := e.EnhanceMulti(context.Background(), "u1", "some prompt"); err == nil {
		t.Fatal("expected error when generation hangs past its timeout")
	}
}

func TestEnhanceMultiStyleTemperatures(t *testing.T) {
	var mu sync.Mutex
	temps := make(map[string]float64)
	f := &fakeLLM{respond: func(_ context.Context, content string, opts *llm.GenerateOptions) (string, error) {
		if style := styleOf(content); style != "" {
			mu.Lock()
			temps[style] = opts.Temperature
			mu.Unlock()
		}
		if isScoreCall(content) {
			return `{"score": 80}`, nil
		}
		return "out", nil
	}}
	e, _ := newTestEnhancer(f, nil, Options{})

	if _, err := e.EnhanceMulti(context.Background(), "u1", "some prompt"); err != nil {
		t.Fatalf("EnhanceMulti failed: %v", err)
	}

	want := map[string]float64{"professional": 0.3, "creative": 0.8, "technical": 0.4}
	for style, temp := range want {
		if temps[style] != temp {
			t.Errorf("%s temperature = %v, want %v", style, temps[style], temp)
		}
	}
}

func TestEnhanceMultiHintsReachGeneration(t *testing.T) {
	store := newKVStore()
	profiles := profile.NewManager(store)
	tone := "formal"
	if _, err := profiles.SetPreferences("u1", profile.PreferenceUpdate{Tone: &tone}); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}

	var mu sync.Mutex
	sawHints := false
	f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if styleOf(content) != "" && strings.Contains(content, "- User preferences: Use professional language") {
			mu.Lock()
			sawHints = true
			mu.Unlock()
		}
		if isScoreCall(content) {
			return `{"score": 80}`, nil
		}
		return "out", nil
	}}
	injector := injection.NewInjector(injection.NewProjectAdapter(), injection.NewDomainAdapter())
	e := NewEnhancer(f, profiles, injector, nil, Options{})

	res, err := e.EnhanceMulti(context.Background(), "u1", "plan my week")
	if err != nil {
		t.Fatalf("EnhanceMulti failed: %v", err)
	}
	if !sawHints {
		t.Error("generation prompts never carried the user preference hints")
	}
	if len(res.PersonalizedHints) != 1 || res.PersonalizedHints[0] != "Use professional language" {
		t.Errorf("PersonalizedHints = %v", res.PersonalizedHints)
	}
}

func TestEnhanceSingle(t *testing.T) {
	f := &fakeLLM{respond: func(_ context.Context, content string, opts *llm.GenerateOptions) (string, error) {
		if strings.Contains(content, "User prompt to analyze") {
			if opts.Temperature != 0.3 {
				t.Errorf("analysis temperature = %v, want 0.3", opts.Temperature)
			}
			return `{"issues":["too vague"],"strengths":["short"],"suggestions":["add detail"],"score":60}`, nil
		}
		if strings.Contains(content, "expert prompt engineer") {
			if opts.Temperature != 0.7 {
				t.Errorf("enhancement temperature = %v, want 0.7", opts.Temperature)
			}
			return "a much better prompt", nil
		}
		t.Errorf("unexpected prompt: %s", content)
		return "", errors.New("unexpected prompt")
	}}
	e, _ := newTestEnhancer(f, nil, Options{})

	res, err := e.EnhanceSingle(context.Background(), "make this better")
	if err != nil {
		t.Fatalf("EnhanceSingle failed: %v", err)
	}
	if res.EnhancedPrompt != "a much better prompt" {
		t.Errorf("EnhancedPrompt = %q", res.EnhancedPrompt)
	}
	if res.OriginalInput != "make this better" {
		t.Errorf("OriginalInput = %q", res.OriginalInput)
	}
	if res.Analysis.Score != 60 || len(res.Analysis.Issues) != 1 {
		t.Errorf("Analysis = %+v", res.Analysis)
	}
}

func TestEnhanceSingleAnalysisFallback(t *testing.T) {
	f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if strings.Contains(content, "User prompt to analyze") {
			return "I cannot answer in JSON, sorry", nil
		}
		return "enhanced text", nil
	}}
	e, _ := newTestEnhancer(f, nil, Options{})

	res, err := e.EnhanceSingle(context.Background(), "make this better")
	if err != nil {
		t.Fatalf("EnhanceSingle failed: %v", err)
	}
	want := fallbackAnalysis()
	if res.Analysis.Score != want.Score || res.Analysis.Issues[0] != want.Issues[0] || res.Analysis.Suggestions[0] != want.Suggestions[0] {
		t.Errorf("Analysis = %+v, want fallback %+v", res.Analysis, want)
	}
}

func TestEnhanceSingleRewriteFailureIsFatal(t *testing.T) {
	f := &fakeLLM{respond: func(_ context.Context, content string, _ *llm.GenerateOptions) (string, error) {
		if strings.Contains(content, "User prompt to analyze") {
			return `{"issues":[],"strengths":[],"suggestions":[],"score":70}`, nil
		}
		return "", errors.New("model unavailable")
	}}
	e, _ := newTestEnhancer(f, nil, Options{})

	if _, err := e.EnhanceSingle(context.Background(), "make this better"); err == nil {
		t.Fatal("expected error when the rewrite fails")
	}
}

func TestEnhanceSingleEmptyInput(t *testing.T) {
	e, _ := newTestEnhancer(&fakeLLM{}, nil, Options{})
	if _, err := e.EnhanceSingle(context.Background(), "  "); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		resp    string
		want    int
		wantErr bool
	}{
		{`{"score": 80}`, 80, false},
		{`{"score": 80.6}`, 80, false},
		{"```json\n{\"score\": 55}\n```", 55, false},
		{"not json", 75, true},
		{`{"score": 150}`, 100, false},
		{`{"score": -10}`, 0, false},
		{"", 75, true},
	}
	for _, tt := range tests {
		got, err := parseScore(tt.resp)
		if got != tt.want {
			t.Errorf("parseScore(%q) = %d, want %d", tt.resp, got, tt.want)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("parseScore(%q) err = %v, wantErr %v", tt.resp, err, tt.wantErr)
		}
	}
}

func TestPreviewsTruncateByRune(t *testing.T) {
	// Multibyte runes straddle the 100-character boundary; the preview must
	// cut between runes, not inside one.
	content := strings.Repeat("a", 99) + strings.Repeat("é", 10)
	got := previews([]injection.Item{{Kind: injection.KindHistory, Content: content}})

	if len(got) != 1 {
		t.Fatalf("got %d previews, want 1", len(got))
	}
	want := string([]rune(content)[:100]) + "..."
	if got[0].Content != want {
		t.Errorf("preview = %q, want %q", got[0].Content, want)
	}
	if !utf8.ValidString(got[0].Content) {
		t.Errorf("preview is not valid UTF-8: %q", got[0].Content)
	}

	short := previews([]injection.Item{{Kind: injection.KindWeb, Content: "tiny"}})
	if short[0].Content != "tiny..." {
		t.Errorf("short preview = %q, want tiny...", short[0].Content)
	}
}
