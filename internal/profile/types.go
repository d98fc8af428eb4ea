package profile

import "time"

// Profile is a user's behavioral record: stated preferences, observed
// patterns, and aggregate stats. Persisted as JSON under the
// userProfile_<userID> key.
type Profile struct {
	UserID      string      `json:"userId"`
	Preferences Preferences `json:"preferences"`
	Patterns    Patterns    `json:"patterns"`
	Stats       Stats       `json:"stats"`
}

// Preferences are the user's stated (or defaulted) output preferences.
type Preferences struct {
	Domains        []string `json:"domains"`
	Complexity     string   `json:"complexity"`     // beginner | intermediate | expert
	Tone           string   `json:"tone"`           // formal | casual | technical
	ResponseLength string   `json:"responseLength"` // short | medium | detailed
}

// Patterns are behavioral signals accumulated across interactions.
type Patterns struct {
	// CommonTopics holds up to 10 unique domains, most recent first.
	CommonTopics []string `json:"commonTopics"`
	// FrequentKeywords holds up to 20 unique keywords, most recent first.
	FrequentKeywords []string `json:"frequentKeywords"`
	// SuccessfulEnhancements collects enhanced prompts that scored above 80.
	SuccessfulEnhancements []string `json:"successfulEnhancements"`
	PreferredStructures    []string `json:"preferredStructures"`
}

// Stats are aggregate interaction counters.
type Stats struct {
	TotalPrompts int       `json:"totalPrompts"`
	AverageScore float64   `json:"averageScore"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Capacity limits for the recency lists.
const (
	maxCommonTopics     = 10
	maxFrequentKeywords = 20
)

// newDefaultProfile returns the profile assigned to a user on first contact.
func newDefaultProfile(userID string, now time.Time) Profile {
	return Profile{
		UserID: userID,
		Preferences: Preferences{
			Domains:        []string{},
			Complexity:     "intermediate",
			Tone:           "casual",
			ResponseLength: "medium",
		},
		Patterns: Patterns{
			CommonTopics:           []string{},
			FrequentKeywords:       []string{},
			SuccessfulEnhancements: []string{},
			PreferredStructures:    []string{},
		},
		Stats: Stats{
			CreatedAt:    now,
			LastActiveAt: now,
		},
	}
}
