package store

import (
	"context"
	"errors"

	"threadpulse.app/pulse/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore defines the contract for conversation state access
type ConversationStore interface {
	GetByID(ctx context.Context, id int64) (*model.Conversation, error)
	GetByKey(ctx context.Context, key model.Key) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	Update(ctx context.Context, conv *model.Conversation) error
	// MarkNotified flips the notified flag if it is still false.
	// Returns true if this call claimed the transition, false if the
	// conversation was already notified. The conditional update is the
	// database-level backstop for the exactly-once guarantee.
	MarkNotified(ctx context.Context, id int64) (bool, error)
}

// InsightStore defines the contract for insight history access
type InsightStore interface {
	Create(ctx context.Context, insight *model.Insight) error
	ListByConversation(ctx context.Context, conversationID int64, limit int32) ([]model.Insight, error)
}

// NotificationStore defines the contract for delivery record access
type NotificationStore interface {
	Create(ctx context.Context, rec *model.NotificationRecord) error
	GetByConversation(ctx context.Context, conversationID int64, typ model.NotificationType) (*model.NotificationRecord, error)
}
