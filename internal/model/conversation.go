package model

import (
	"fmt"
	"time"
)

// Key identifies a conversation: a channel within a workspace, optionally
// narrowed to a thread. The string form is the stable grouping key used by
// the buffer, the KV store, and the conversations table.
type Key struct {
	WorkspaceID string
	ChannelID   string
	ThreadID    *string
}

func (k Key) String() string {
	if k.ThreadID != nil && *k.ThreadID != "" {
		return fmt.Sprintf("%s:%s:%s", k.WorkspaceID, k.ChannelID, *k.ThreadID)
	}
	return fmt.Sprintf("%s:%s", k.WorkspaceID, k.ChannelID)
}

// Conversation is the durable per-key record accumulated across events.
// Notified is monotonic: it transitions false→true exactly once and is
// never reset. WindowStartAt and WindowMessageCount describe the current
// activity window, not the conversation's lifetime: both restart when a
// silence gap re-anchors the window, so temporal gate rules judge present
// activity rather than age.
type Conversation struct {
	ID                 int64
	WorkspaceID        string
	ChannelID          string
	ThreadID           *string
	MessageCount       int
	WindowMessageCount int // messages since the current window anchor
	Participants       []string
	WordCount          int
	Summary            string
	SummaryVersion     int
	PendingText        string // buffered text not yet folded into the summary
	PendingEvents      int
	WindowStartAt      time.Time
	LastActivityAt     time.Time
	GatePassedAt       *time.Time
	LastAnalyzedAt     *time.Time
	LastCompressAt     *time.Time
	Notified           bool
	SignalScore        int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (c *Conversation) Key() Key {
	return Key{WorkspaceID: c.WorkspaceID, ChannelID: c.ChannelID, ThreadID: c.ThreadID}
}

// HasParticipant reports whether the user already appears in the
// distinct participant set.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
