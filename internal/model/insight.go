package model

import "time"

// Insight records one analysis outcome for a conversation. Immutable after
// creation; a conversation accumulates insight history, but only the first
// worthy insight for a not-yet-notified conversation causes delivery.
type Insight struct {
	ID             int64
	ConversationID int64
	Worthy         bool
	Confidence     float64
	Topic          string
	Summary        string
	Framing        string // suggested framing/tone for the outbound content
	SuggestedPost  string
	SummaryVersion int
	CreatedAt      time.Time
}
