package model

import "time"

type NotificationType string

const (
	NotificationTypeInsightDetected NotificationType = "insight_detected"
)

// NotificationRecord is the delivery proof written alongside the notified
// flag. ExternalMessageID correlates replies back to the conversation.
type NotificationRecord struct {
	ID                int64
	ConversationID    int64
	Type              NotificationType
	ExternalMessageID string
	DeliveredAt       time.Time
}
