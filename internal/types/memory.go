// Package types holds the value types shared across the engine.
package types

import "time"

// Sender identifies who authored a memory entry.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Valid reports whether s is a known sender.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAgent
}

// MemoryEntry is one message in a user's interaction log.
type MemoryEntry struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Sender  Sender `json:"sender"`
	// Timestamp may be zero when the stored value was missing or unparseable.
	Timestamp          time.Time `json:"timestamp"`
	Emotion            string    `json:"emotion,omitempty"`
	EmotionalIntensity float64   `json:"emotional_intensity"`
	// Salience and RepetitionScore are computed once at write time.
	Salience        float64   `json:"salience"`
	RepetitionScore float64   `json:"repetition_score"`
	TopicTags       []string  `json:"topic_tags,omitempty"`
	TaskReference   string    `json:"task_reference,omitempty"`
	ReplyToID       string    `json:"reply_to_id,omitempty"`
	Embedding       []float32 `json:"-"`
}

// RankedEntry is a memory entry with its decayed relevance weight.
type RankedEntry struct {
	Entry  MemoryEntry `json:"entry"`
	Decay  float64     `json:"decay"`
	Weight float64     `json:"weight"`
}
