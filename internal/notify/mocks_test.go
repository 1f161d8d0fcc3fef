package notify_test

import (
	"context"

	"threadpulse.app/pulse/internal/model"
)

type mockConversationStore struct {
	markNotifiedFn    func(ctx context.Context, id int64) (bool, error)
	markNotifiedCalls int
}

func (m *mockConversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationStore) GetByKey(ctx context.Context, key model.Key) (*model.Conversation, error) {
	return nil, nil
}

func (m *mockConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	return nil
}

func (m *mockConversationStore) Update(ctx context.Context, conv *model.Conversation) error {
	return nil
}

func (m *mockConversationStore) MarkNotified(ctx context.Context, id int64) (bool, error) {
	m.markNotifiedCalls++
	if m.markNotifiedFn != nil {
		return m.markNotifiedFn(ctx, id)
	}
	return true, nil
}

type mockNotificationStore struct {
	createFn func(ctx context.Context, rec *model.NotificationRecord) error
	created  []*model.NotificationRecord
}

func (m *mockNotificationStore) Create(ctx context.Context, rec *model.NotificationRecord) error {
	m.created = append(m.created, rec)
	if m.createFn != nil {
		return m.createFn(ctx, rec)
	}
	return nil
}

func (m *mockNotificationStore) GetByConversation(ctx context.Context, conversationID int64, typ model.NotificationType) (*model.NotificationRecord, error) {
	return nil, nil
}

type mockPoster struct {
	postFn    func(ctx context.Context, channelID string, threadID *string, text string) (string, error)
	postCalls int
	lastText  string
}

func (m *mockPoster) Post(ctx context.Context, channelID string, threadID *string, text string) (string, error) {
	m.postCalls++
	m.lastText = text
	if m.postFn != nil {
		return m.postFn(ctx, channelID, threadID, text)
	}
	return "ext-msg-1", nil
}
