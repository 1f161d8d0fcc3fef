package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"threadpulse.app/pulse/core/db"
	"threadpulse.app/pulse/internal/model"
)

type conversationStore struct {
	q db.Querier
}

func newConversationStore(q db.Querier) ConversationStore {
	return &conversationStore{q: q}
}

const conversationColumns = `
	id, workspace_id, channel_id, thread_id, message_count, window_message_count,
	participants, word_count, summary, summary_version, pending_text,
	pending_events, window_start_at, last_activity_at, gate_passed_at,
	last_analyzed_at, last_compress_at, notified, signal_score, created_at,
	updated_at`

func (s *conversationStore) GetByID(ctx context.Context, id int64) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx, `SELECT`+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *conversationStore) GetByKey(ctx context.Context, key model.Key) (*model.Conversation, error) {
	row := s.q.QueryRow(ctx, `SELECT`+conversationColumns+`
		FROM conversations
		WHERE workspace_id = $1 AND channel_id = $2 AND thread_id IS NOT DISTINCT FROM $3`,
		key.WorkspaceID, key.ChannelID, key.ThreadID)
	return scanConversation(row)
}

func (s *conversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO conversations (
			id, workspace_id, channel_id, thread_id, message_count,
			window_message_count, participants, word_count, summary,
			summary_version, pending_text, pending_events, window_start_at,
			last_activity_at, gate_passed_at, last_analyzed_at, last_compress_at,
			notified, signal_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		conv.ID, conv.WorkspaceID, conv.ChannelID, conv.ThreadID, conv.MessageCount,
		conv.WindowMessageCount, conv.Participants, conv.WordCount, conv.Summary,
		conv.SummaryVersion, conv.PendingText, conv.PendingEvents, conv.WindowStartAt,
		conv.LastActivityAt, conv.GatePassedAt, conv.LastAnalyzedAt, conv.LastCompressAt,
		conv.Notified, conv.SignalScore)
	if err := row.Scan(&conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return err
	}
	return nil
}

func (s *conversationStore) Update(ctx context.Context, conv *model.Conversation) error {
	// Notified is deliberately absent: the flag only moves through MarkNotified.
	row := s.q.QueryRow(ctx, `
		UPDATE conversations SET
			message_count = $2, window_message_count = $3, participants = $4,
			word_count = $5, summary = $6, summary_version = $7, pending_text = $8,
			pending_events = $9, window_start_at = $10, last_activity_at = $11,
			gate_passed_at = $12, last_analyzed_at = $13, last_compress_at = $14,
			signal_score = $15, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		conv.ID, conv.MessageCount, conv.WindowMessageCount, conv.Participants,
		conv.WordCount, conv.Summary, conv.SummaryVersion, conv.PendingText,
		conv.PendingEvents, conv.WindowStartAt, conv.LastActivityAt, conv.GatePassedAt,
		conv.LastAnalyzedAt, conv.LastCompressAt, conv.SignalScore)
	if err := row.Scan(&conv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *conversationStore) MarkNotified(ctx context.Context, id int64) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE conversations SET notified = true, updated_at = now()
		WHERE id = $1 AND notified = false`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(
		&conv.ID, &conv.WorkspaceID, &conv.ChannelID, &conv.ThreadID,
		&conv.MessageCount, &conv.WindowMessageCount, &conv.Participants,
		&conv.WordCount, &conv.Summary, &conv.SummaryVersion, &conv.PendingText,
		&conv.PendingEvents, &conv.WindowStartAt, &conv.LastActivityAt,
		&conv.GatePassedAt, &conv.LastAnalyzedAt, &conv.LastCompressAt,
		&conv.Notified, &conv.SignalScore, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}
