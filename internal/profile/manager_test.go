package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/promptd/promptd/internal/storage"
)

type mockStore struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	putErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	return nil
}

type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time { return c.now }

func TestGetReturnsDefaultsForUnknownUser(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManagerWithClock(newMockStore(), clock)

	p := m.Get("u1")
	if p.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", p.UserID)
	}
	if p.Preferences.Complexity != "intermediate" || p.Preferences.Tone != "casual" || p.Preferences.ResponseLength != "medium" {
		t.Errorf("default preferences = %+v", p.Preferences)
	}
	if p.Stats.TotalPrompts != 0 || p.Stats.AverageScore != 0 {
		t.Errorf("default stats = %+v", p.Stats)
	}
	if !p.Stats.CreatedAt.Equal(clock.now) {
		t.Errorf("CreatedAt = %v, want %v", p.Stats.CreatedAt, clock.now)
	}
}

func TestGetStoresDefaultOnFirstAccess(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManagerWithClock(store, clock)

	first := m.Get("u1")
	if _, ok := store.data[storage.ProfileKey("u1")]; !ok {
		t.Fatal("default profile was not stored on first access")
	}

	// Later reads see the stored profile, not a fresh default.
	clock.now = clock.now.Add(time.Hour)
	second := m.Get("u1")
	if !second.Stats.CreatedAt.Equal(first.Stats.CreatedAt) {
		t.Errorf("CreatedAt drifted across reads: %v then %v", first.Stats.CreatedAt, second.Stats.CreatedAt)
	}
	if !second.Stats.LastActiveAt.Equal(first.Stats.LastActiveAt) {
		t.Errorf("LastActiveAt drifted across reads: %v then %v", first.Stats.LastActiveAt, second.Stats.LastActiveAt)
	}
}

func TestGetDegradesOnStoreError(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("disk on fire")
	m := NewManager(store)

	p := m.Get("u1")
	if p.Preferences.Complexity != "intermediate" {
		t.Errorf("expected default profile on store error, got %+v", p)
	}
}

func TestGetDegradesOnMalformedProfile(t *testing.T) {
	store := newMockStore()
	store.data[storage.ProfileKey("u1")] = "not json"
	m := NewManager(store)

	p := m.Get("u1")
	if p.UserID != "u1" || p.Preferences.Tone != "casual" {
		t.Errorf("expected default profile on malformed data, got %+v", p)
	}
}

func TestRecordInteractionRunningAverage(t *testing.T) {
	m := NewManager(newMockStore())

	if err := m.RecordInteraction("u1", "write code for me", "enhanced", 90); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	if err := m.RecordInteraction("u1", "write more code", "enhanced", 70); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	p := m.Get("u1")
	if p.Stats.TotalPrompts != 2 {
		t.Errorf("TotalPrompts = %d, want 2", p.Stats.TotalPrompts)
	}
	if p.Stats.AverageScore != 80 {
		t.Errorf("AverageScore = %v, want 80", p.Stats.AverageScore)
	}
}

func TestRecordInteractionTopicsAndKeywords(t *testing.T) {
	m := NewManager(newMockStore())

	if err := m.RecordInteraction("u1", "debug this database function", "enhanced", 50); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	p := m.Get("u1")
	if !reflect.DeepEqual(p.Patterns.CommonTopics, []string{"coding"}) {
		t.Errorf("CommonTopics = %v, want [coding]", p.Patterns.CommonTopics)
	}
	// Later keywords end up nearer the front.
	want := []string{"function", "database", "this", "debug"}
	if !reflect.DeepEqual(p.Patterns.FrequentKeywords, want) {
		t.Errorf("FrequentKeywords = %v, want %v", p.Patterns.FrequentKeywords, want)
	}

	// Repeating a domain moves it to the front without duplicating.
	if err := m.RecordInteraction("u1", "write me an essay", "enhanced", 50); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	if err := m.RecordInteraction("u1", "debug my code", "enhanced", 50); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	p = m.Get("u1")
	if !reflect.DeepEqual(p.Patterns.CommonTopics, []string{"coding", "writing"}) {
		t.Errorf("CommonTopics = %v, want [coding writing]", p.Patterns.CommonTopics)
	}
}

func TestRecordInteractionGeneralDomain(t *testing.T) {
	m := NewManager(newMockStore())

	// Unclassifiable prompts still count as a topic.
	if err := m.RecordInteraction("u1", "hello there friend", "enhanced", 50); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	p := m.Get("u1")
	if !reflect.DeepEqual(p.Patterns.CommonTopics, []string{"general"}) {
		t.Errorf("CommonTopics = %v, want [general]", p.Patterns.CommonTopics)
	}

	hints := m.Hints("u1", "hello there friend")
	want := []string{
		"Apply general-specific best practices",
		"Keep tone conversational",
	}
	if !reflect.DeepEqual(hints, want) {
		t.Errorf("Hints = %v, want %v", hints, want)
	}
}

func TestRecordInteractionKeywordCap(t *testing.T) {
	m := NewManager(newMockStore())

	var prompt string
	for i := 0; i < 25; i++ {
		prompt += fmt.Sprintf("keyword%02d ", i)
	}
	if err := m.RecordInteraction("u1", prompt, "enhanced", 50); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	p := m.Get("u1")
	if len(p.Patterns.FrequentKeywords) != maxFrequentKeywords {
		t.Errorf("FrequentKeywords length = %d, want %d", len(p.Patterns.FrequentKeywords), maxFrequentKeywords)
	}
	if p.Patterns.FrequentKeywords[0] != "keyword24" {
		t.Errorf("most recent keyword = %q, want keyword24", p.Patterns.FrequentKeywords[0])
	}
	seen := make(map[string]bool)
	for _, kw := range p.Patterns.FrequentKeywords {
		if seen[kw] {
			t.Errorf("duplicate keyword %q", kw)
		}
		seen[kw] = true
	}
}

func TestRecordInteractionSuccessThreshold(t *testing.T) {
	m := NewManager(newMockStore())

	if err := m.RecordInteraction("u1", "prompt one", "kept", 81); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}
	if err := m.RecordInteraction("u1", "prompt two", "dropped", 80); err != nil {
		t.Fatalf("RecordInteraction failed: %v", err)
	}

	p := m.Get("u1")
	if !reflect.DeepEqual(p.Patterns.SuccessfulEnhancements, []string{"kept"}) {
		t.Errorf("SuccessfulEnhancements = %v, want [kept]", p.Patterns.SuccessfulEnhancements)
	}
}

func TestRecordInteractionConcurrentSameUser(t *testing.T) {
	m := NewManager(newMockStore())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.RecordInteraction("u1", "some prompt", "enhanced", 60); err != nil {
				t.Errorf("RecordInteraction failed: %v", err)
			}
		}()
	}
	wg.Wait()

	p := m.Get("u1")
	if p.Stats.TotalPrompts != n {
		t.Errorf("TotalPrompts = %d, want %d (lost updates)", p.Stats.TotalPrompts, n)
	}
	if p.Stats.AverageScore != 60 {
		t.Errorf("AverageScore = %v, want 60", p.Stats.AverageScore)
	}
}

func TestHints(t *testing.T) {
	store := newMockStore()
	m := NewManager(store)

	// Beginner + formal, coding in common topics.
	p := newDefaultProfile("u1", time.Now())
	p.Preferences.Complexity = "beginner"
	p.Preferences.Tone = "formal"
	p.Patterns.CommonTopics = []string{"coding"}
	b, _ := json.Marshal(p)
	store.data[storage.ProfileKey("u1")] = string(b)

	hints := m.Hints("u1", "help me write code")
	want := []string{
		"Add explanations for technical terms",
		"Include step-by-step instructions",
		"Apply coding-specific best practices",
		"Use professional language",
	}
	if !reflect.DeepEqual(hints, want) {
		t.Errorf("Hints = %v, want %v", hints, want)
	}
}

func TestHintsNoDomainHintWithoutTopicHistory(t *testing.T) {
	m := NewManager(newMockStore())

	// Default profile: intermediate + casual, no topics yet.
	hints := m.Hints("u1", "help me write code")
	want := []string{"Keep tone conversational"}
	if !reflect.DeepEqual(hints, want) {
		t.Errorf("Hints = %v, want %v", hints, want)
	}
}

func TestSetPreferences(t *testing.T) {
	m := NewManager(newMockStore())

	tone := "technical"
	p, err := m.SetPreferences("u1", PreferenceUpdate{Tone: &tone})
	if err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}
	if p.Preferences.Tone != "technical" {
		t.Errorf("Tone = %q, want technical", p.Preferences.Tone)
	}
	// Untouched fields keep defaults.
	if p.Preferences.Complexity != "intermediate" {
		t.Errorf("Complexity = %q, want intermediate", p.Preferences.Complexity)
	}

	bad := "extreme"
	if _, err := m.SetPreferences("u1", PreferenceUpdate{Complexity: &bad}); err == nil {
		t.Error("expected error for invalid complexity")
	}
}
