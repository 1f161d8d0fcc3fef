package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"threadpulse.app/pulse/core/db"
	"threadpulse.app/pulse/internal/model"
)

type notificationStore struct {
	q db.Querier
}

func newNotificationStore(q db.Querier) NotificationStore {
	return &notificationStore{q: q}
}

func (s *notificationStore) Create(ctx context.Context, rec *model.NotificationRecord) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO notification_records (
			id, conversation_id, type, external_message_id
		) VALUES ($1,$2,$3,$4)
		RETURNING delivered_at`,
		rec.ID, rec.ConversationID, rec.Type, rec.ExternalMessageID)
	return row.Scan(&rec.DeliveredAt)
}

func (s *notificationStore) GetByConversation(ctx context.Context, conversationID int64, typ model.NotificationType) (*model.NotificationRecord, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, conversation_id, type, external_message_id, delivered_at
		FROM notification_records
		WHERE conversation_id = $1 AND type = $2`,
		conversationID, typ)

	var rec model.NotificationRecord
	err := row.Scan(&rec.ID, &rec.ConversationID, &rec.Type, &rec.ExternalMessageID, &rec.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
