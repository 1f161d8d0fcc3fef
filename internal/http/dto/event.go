package dto

import "time"

type IngestEventRequest struct {
	WorkspaceID string     `json:"workspace_id" binding:"required"`
	ChannelID   string     `json:"channel_id" binding:"required"`
	ThreadID    *string    `json:"thread_id,omitempty"`
	UserID      string     `json:"user_id" binding:"required"`
	Text        string     `json:"text" binding:"required"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	IsBot       bool       `json:"is_bot,omitempty"`
}

type IngestEventResponse struct {
	ConversationKey string `json:"conversation_key"`
	Enqueued        bool   `json:"enqueued"`
}
