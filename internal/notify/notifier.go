// Package notify delivers the outbound insight message for a conversation,
// at most once, and records the delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"threadpulse.app/pulse/common/id"
	"threadpulse.app/pulse/internal/model"
	"threadpulse.app/pulse/internal/store"
)

// Poster is the outbound delivery channel: post a message to a channel,
// thread-aware, returning the platform's message identifier.
type Poster interface {
	Post(ctx context.Context, channelID string, threadID *string, text string) (string, error)
}

type Status string

const (
	StatusDelivered       Status = "delivered"
	StatusAlreadyNotified Status = "already_notified"
	StatusDryRun          Status = "dry_run"
)

// Delivery is the outcome of a Notify call. AlreadyNotified is a result,
// not an error.
type Delivery struct {
	Status            Status
	ExternalMessageID string
}

type Notifier struct {
	conversations store.ConversationStore
	notifications store.NotificationStore
	poster        Poster
	dryRun        bool
	logger        *slog.Logger
}

func NewNotifier(conversations store.ConversationStore, notifications store.NotificationStore, poster Poster, dryRun bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		conversations: conversations,
		notifications: notifications,
		poster:        poster,
		dryRun:        dryRun,
		logger:        logger,
	}
}

// Notify delivers the insight to the conversation's origin channel exactly
// once. The notified flag is claimed with a conditional update BEFORE
// delivery: under concurrent worthy insights only one caller wins the claim,
// so at most one delivery happens. A delivery failure after the claim leaves
// the conversation notified without a message; a duplicate is worse than a
// gap.
func (n *Notifier) Notify(ctx context.Context, insight *model.Insight, conv *model.Conversation) (*Delivery, error) {
	if conv.Notified {
		return &Delivery{Status: StatusAlreadyNotified}, nil
	}

	payload := FormatPayload(insight)

	if n.dryRun {
		n.logger.InfoContext(ctx, "dry run: suppressing delivery",
			"conversation_id", conv.ID,
			"payload", payload)
		return &Delivery{Status: StatusDryRun}, nil
	}

	claimed, err := n.conversations.MarkNotified(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("claiming notified flag: %w", err)
	}
	if !claimed {
		return &Delivery{Status: StatusAlreadyNotified}, nil
	}
	conv.Notified = true

	externalID, err := n.poster.Post(ctx, conv.ChannelID, conv.ThreadID, payload)
	if err != nil {
		// The claim stands: retrying delivery here risks duplicates if the
		// post partially succeeded.
		return nil, fmt.Errorf("delivering notification: %w", err)
	}

	rec := &model.NotificationRecord{
		ID:                id.New(),
		ConversationID:    conv.ID,
		Type:              model.NotificationTypeInsightDetected,
		ExternalMessageID: externalID,
	}
	if err := n.notifications.Create(ctx, rec); err != nil {
		// Delivery happened but the record is missing; reply correlation for
		// this conversation is lost. Surface it.
		return nil, fmt.Errorf("recording notification: %w", err)
	}

	n.logger.InfoContext(ctx, "notification delivered",
		"conversation_id", conv.ID,
		"external_message_id", externalID)

	return &Delivery{Status: StatusDelivered, ExternalMessageID: externalID}, nil
}

// FormatPayload renders the insight as the human-readable outbound message.
func FormatPayload(insight *model.Insight) string {
	var sb strings.Builder
	if insight.Topic != "" {
		fmt.Fprintf(&sb, "Something worth sharing: %s\n\n", insight.Topic)
	} else {
		sb.WriteString("Something worth sharing came up in this conversation.\n\n")
	}
	if insight.SuggestedPost != "" {
		sb.WriteString(insight.SuggestedPost)
	} else if insight.Summary != "" {
		sb.WriteString(insight.Summary)
	}
	return strings.TrimSpace(sb.String())
}
