// Package injection gathers, ranks, and renders context items that get
// appended to a user's prompt before rewriting.
package injection

import "time"

// Item kinds.
const (
	KindWeb     = "web"
	KindFile    = "file"
	KindProject = "project"
	KindHistory = "history"
)

// Item is a single piece of gathered context. Items are value types and are
// never mutated after creation.
type Item struct {
	Kind       string    `json:"type"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	Relevance  float64   `json:"relevance"`
	ObservedAt time.Time `json:"timestamp"`
}
