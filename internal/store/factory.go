package store

import (
	"threadpulse.app/pulse/core/db"
)

// Stores bundles the entity stores over a shared querier. Construct one
// over the pool for standalone operations, or over a transaction inside
// db.WithTx when several writes must commit together.
type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.q)
}

func (s *Stores) Insights() InsightStore {
	return newInsightStore(s.q)
}

func (s *Stores) Notifications() NotificationStore {
	return newNotificationStore(s.q)
}
