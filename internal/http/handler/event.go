package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"threadpulse.app/pulse/internal/http/dto"
	"threadpulse.app/pulse/internal/model"
	"threadpulse.app/pulse/internal/queue"
)

type EventHandler struct {
	producer    queue.Producer
	traceHeader string
}

func NewEventHandler(producer queue.Producer, traceHeader string) *EventHandler {
	return &EventHandler{
		producer:    producer,
		traceHeader: traceHeader,
	}
}

// Ingest accepts one chat event and enqueues it for the worker. The API is
// fire-and-forget: a 202 means the event is durably on the stream, not that
// it produced any analysis.
func (h *EventHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid ingest request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	timestamp := time.Now()
	if req.Timestamp != nil {
		timestamp = *req.Timestamp
	}

	event := model.Event{
		WorkspaceID: req.WorkspaceID,
		ChannelID:   req.ChannelID,
		ThreadID:    req.ThreadID,
		UserID:      req.UserID,
		Text:        req.Text,
		Timestamp:   timestamp,
		IsBot:       req.IsBot,
	}

	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}

	msg := queue.EventMessage{Event: event}
	if traceID != "" {
		msg.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest event"})
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestEventResponse{
		ConversationKey: event.Key().String(),
		Enqueued:        true,
	})
}
