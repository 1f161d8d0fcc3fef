package store

import (
	"context"

	"threadpulse.app/pulse/core/db"
	"threadpulse.app/pulse/internal/model"
)

type insightStore struct {
	q db.Querier
}

func newInsightStore(q db.Querier) InsightStore {
	return &insightStore{q: q}
}

func (s *insightStore) Create(ctx context.Context, insight *model.Insight) error {
	row := s.q.QueryRow(ctx, `
		INSERT INTO insights (
			id, conversation_id, worthy, confidence, topic, summary,
			framing, suggested_post, summary_version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		insight.ID, insight.ConversationID, insight.Worthy, insight.Confidence,
		insight.Topic, insight.Summary, insight.Framing, insight.SuggestedPost,
		insight.SummaryVersion)
	return row.Scan(&insight.CreatedAt)
}

func (s *insightStore) ListByConversation(ctx context.Context, conversationID int64, limit int32) ([]model.Insight, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, conversation_id, worthy, confidence, topic, summary,
			framing, suggested_post, summary_version, created_at
		FROM insights
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []model.Insight
	for rows.Next() {
		var in model.Insight
		if err := rows.Scan(&in.ID, &in.ConversationID, &in.Worthy, &in.Confidence,
			&in.Topic, &in.Summary, &in.Framing, &in.SuggestedPost, &in.SummaryVersion,
			&in.CreatedAt); err != nil {
			return nil, err
		}
		insights = append(insights, in)
	}
	return insights, rows.Err()
}
