package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// HistoryEntry is a single chat message kept per user under the
// chatHistory_<userID> key.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// EnhancementRecord logs one multi-style enhancement run.
type EnhancementRecord struct {
	ID        string
	UserID    string
	Input     string
	BestStyle string
	AvgScore  int
	CreatedAt time.Time
}

// ProfileKey returns the KV key holding the user's profile JSON.
func ProfileKey(userID string) string {
	return "userProfile_" + userID
}

// HistoryKey returns the KV key holding the user's chat history JSON.
func HistoryKey(userID string) string {
	return "chatHistory_" + userID
}
