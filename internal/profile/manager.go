// Package profile tracks per-user behavioral profiles and derives
// personalization hints from them.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/promptd/promptd/internal/analysis"
	"github.com/promptd/promptd/internal/storage"
)

// Store defines the key-value operations the Manager needs.
// Implemented by storage.Store. Get returns storage.ErrNotFound for
// missing keys.
type Store interface {
	Get(key string) (string, error)
	Put(key, value string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides structured access to user profiles. Updates to the same
// user are serialized by a per-user mutex; distinct users proceed
// concurrently.
type Manager struct {
	store Store
	clock Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		locks: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing updates for userID, creating it on
// first use.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// Get returns the user's profile, lazily creating and storing a default one
// for unknown users. Store failures degrade to a default profile rather than
// surfacing.
func (m *Manager) Get(userID string) Profile {
	raw, err := m.store.Get(storage.ProfileKey(userID))
	if err != nil {
		p := newDefaultProfile(userID, m.clock.Now())
		if errors.Is(err, storage.ErrNotFound) {
			if saveErr := m.save(p); saveErr != nil {
				slog.Warn("profile: storing default failed", "user", userID, "error", saveErr)
			}
		} else {
			slog.Warn("profile: read failed, using defaults", "user", userID, "error", err)
		}
		return p
	}

	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		slog.Warn("profile: malformed profile, using defaults", "user", userID, "error", err)
		return newDefaultProfile(userID, m.clock.Now())
	}
	return p
}

// RecordInteraction folds one scored interaction into the user's profile:
// topic and keyword recency lists, the successful-enhancement collection,
// and the running average. The whole read-modify-write is atomic per user.
func (m *Manager) RecordInteraction(userID, prompt, enhancedPrompt string, score float64) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p := m.Get(userID)

	p.Patterns.CommonTopics = moveToFront(p.Patterns.CommonTopics, analysis.DetectDomain(prompt), maxCommonTopics)
	for _, kw := range analysis.ExtractKeywords(prompt) {
		p.Patterns.FrequentKeywords = moveToFront(p.Patterns.FrequentKeywords, kw, maxFrequentKeywords)
	}
	if score > 80 {
		p.Patterns.SuccessfulEnhancements = append(p.Patterns.SuccessfulEnhancements, enhancedPrompt)
	}

	p.Stats.TotalPrompts++
	n := float64(p.Stats.TotalPrompts)
	p.Stats.AverageScore = (p.Stats.AverageScore*(n-1) + score) / n
	p.Stats.LastActiveAt = m.clock.Now()

	return m.save(p)
}

// PreferenceUpdate carries optional preference changes; nil fields are left
// untouched.
type PreferenceUpdate struct {
	Complexity     *string  `json:"complexity,omitempty"`
	Tone           *string  `json:"tone,omitempty"`
	ResponseLength *string  `json:"responseLength,omitempty"`
	Domains        []string `json:"domains,omitempty"`
}

var (
	validComplexity = map[string]bool{"beginner": true, "intermediate": true, "expert": true}
	validTone       = map[string]bool{"formal": true, "casual": true, "technical": true}
	validLength     = map[string]bool{"short": true, "medium": true, "detailed": true}
)

// SetPreferences applies a partial preference update and returns the new
// profile.
func (m *Manager) SetPreferences(userID string, upd PreferenceUpdate) (Profile, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	p := m.Get(userID)

	if upd.Complexity != nil {
		if !validComplexity[*upd.Complexity] {
			return Profile{}, fmt.Errorf("invalid complexity %q", *upd.Complexity)
		}
		p.Preferences.Complexity = *upd.Complexity
	}
	if upd.Tone != nil {
		if !validTone[*upd.Tone] {
			return Profile{}, fmt.Errorf("invalid tone %q", *upd.Tone)
		}
		p.Preferences.Tone = *upd.Tone
	}
	if upd.ResponseLength != nil {
		if !validLength[*upd.ResponseLength] {
			return Profile{}, fmt.Errorf("invalid response length %q", *upd.ResponseLength)
		}
		p.Preferences.ResponseLength = *upd.ResponseLength
	}
	if upd.Domains != nil {
		p.Preferences.Domains = upd.Domains
	}

	if err := m.save(p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Hints derives personalization hints for the prompt from the user's
// profile. Order is fixed: complexity hints, then the domain hint, then the
// tone hint.
func (m *Manager) Hints(userID, prompt string) []string {
	p := m.Get(userID)
	var hints []string

	switch p.Preferences.Complexity {
	case "beginner":
		hints = append(hints,
			"Add explanations for technical terms",
			"Include step-by-step instructions",
		)
	case "expert":
		hints = append(hints,
			"Use advanced terminology",
			"Focus on implementation details",
		)
	}

	domain := analysis.DetectDomain(prompt)
	if contains(p.Patterns.CommonTopics, domain) {
		hints = append(hints, fmt.Sprintf("Apply %s-specific best practices", domain))
	}

	switch p.Preferences.Tone {
	case "formal":
		hints = append(hints, "Use professional language")
	case "casual":
		hints = append(hints, "Keep tone conversational")
	}

	return hints
}

func (m *Manager) save(p Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile for user %s: %w", p.UserID, err)
	}
	if err := m.store.Put(storage.ProfileKey(p.UserID), string(b)); err != nil {
		return fmt.Errorf("saving profile for user %s: %w", p.UserID, err)
	}
	return nil
}

// moveToFront prepends item to list, removing any previous occurrence and
// truncating to max entries.
func moveToFront(list []string, item string, max int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, item)
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
