package model

import "time"

// Event is one inbound chat message. Bot-originated events are carried
// through the transport but dropped by the pipeline.
type Event struct {
	WorkspaceID string    `json:"workspace_id"`
	ChannelID   string    `json:"channel_id"`
	ThreadID    *string   `json:"thread_id,omitempty"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	IsBot       bool      `json:"is_bot"`
}

func (e Event) Key() Key {
	return Key{WorkspaceID: e.WorkspaceID, ChannelID: e.ChannelID, ThreadID: e.ThreadID}
}

// Window is the ephemeral ordered accumulation of events for one key.
// It lives in the keyed TTL store and is replaced, never merged, on close.
type Window struct {
	Events    []Event   `json:"events"`
	OpenedAt  time.Time `json:"opened_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerKind names the condition that closed a window.
type TriggerKind string

const (
	TriggerVolume  TriggerKind = "volume"
	TriggerSilence TriggerKind = "silence"
)

// Trigger is a closed window handed to the pipeline for analysis.
type Trigger struct {
	Kind   TriggerKind
	Key    Key
	Events []Event
}
