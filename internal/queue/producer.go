package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"threadpulse.app/pulse/internal/model"
)

// EventMessage is one chat event in transit between the ingest API and the
// worker, plus transport bookkeeping.
type EventMessage struct {
	Event   model.Event
	TraceID *string
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := eventValues(msg.Event, attempt)

	if msg.TraceID != nil && *msg.TraceID != "" {
		fields["trace_id"] = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued chat event",
		"workspace_id", msg.Event.WorkspaceID,
		"channel_id", msg.Event.ChannelID,
		"user_id", msg.Event.UserID,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func eventValues(event model.Event, attempt int) map[string]any {
	values := map[string]any{
		"workspace_id": event.WorkspaceID,
		"channel_id":   event.ChannelID,
		"user_id":      event.UserID,
		"text":         event.Text,
		"timestamp":    event.Timestamp.Format(time.RFC3339Nano),
		"attempt":      attempt,
	}
	if event.ThreadID != nil && *event.ThreadID != "" {
		values["thread_id"] = *event.ThreadID
	}
	if event.IsBot {
		values["is_bot"] = "1"
	}
	return values
}
