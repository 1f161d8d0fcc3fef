// Package pipeline orchestrates the insight flow: per-event conversation
// state updates and gate evaluation on the ingest path, and the two-phase
// analysis, persistence and notification on the window-close path.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"threadpulse.app/pulse/common/id"
	"threadpulse.app/pulse/common/logger"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/analysis"
	"threadpulse.app/pulse/internal/buffer"
	"threadpulse.app/pulse/internal/gate"
	"threadpulse.app/pulse/internal/kv"
	"threadpulse.app/pulse/internal/model"
	"threadpulse.app/pulse/internal/notify"
	"threadpulse.app/pulse/internal/ratelimit"
	"threadpulse.app/pulse/internal/store"
	"threadpulse.app/pulse/internal/summary"
)

type Pipeline struct {
	stores     *store.Stores
	buffer     *buffer.Manager
	analyzer   *analysis.Client
	compressor *summary.Compressor
	notifier   *notify.Notifier
	gateCfg    config.GateConfig
	cooldown   time.Duration
	silence    time.Duration
	logger     *slog.Logger
}

// New wires the pipeline. The buffer manager is owned by the pipeline: its
// silence triggers feed HandleTrigger directly.
func New(
	stores *store.Stores,
	windows kv.Store,
	analyzer *analysis.Client,
	compressor *summary.Compressor,
	notifier *notify.Notifier,
	bufferCfg config.BufferConfig,
	gateCfg config.GateConfig,
	cooldown time.Duration,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}

	p := &Pipeline{
		stores:     stores,
		analyzer:   analyzer,
		compressor: compressor,
		notifier:   notifier,
		gateCfg:    gateCfg,
		cooldown:   cooldown,
		silence:    bufferCfg.SilenceWindow,
		logger:     log,
	}

	p.buffer = buffer.NewManager(windows, bufferCfg, func(ctx context.Context, trigger model.Trigger) {
		if err := p.HandleTrigger(ctx, trigger); err != nil {
			log.ErrorContext(ctx, "silence trigger processing failed", "error", err)
		}
	}, log)

	return p
}

// Close stops the buffer manager's silence timers. In-flight analysis calls
// are allowed to complete or time out naturally.
func (p *Pipeline) Close() {
	p.buffer.Close()
}

// HandleEvent processes one inbound chat event: updates durable conversation
// state, re-evaluates the signal gate, compresses the rolling summary when
// policy says so, and feeds the buffer. A volume trigger returned by the
// buffer is processed on the spot.
func (p *Pipeline) HandleEvent(ctx context.Context, event model.Event) error {
	if event.IsBot {
		p.logger.DebugContext(ctx, "ignoring bot event", "user_id", event.UserID)
		return nil
	}
	if strings.TrimSpace(event.Text) == "" {
		return nil
	}

	key := event.Key()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(key.String()),
		ChannelID:       logger.Ptr(event.ChannelID),
		UserID:          logger.Ptr(event.UserID),
		Component:       "pulse.pipeline",
	})

	conv, created, err := p.loadOrCreateConversation(ctx, event)
	if err != nil {
		return err
	}

	p.applyEvent(conv, event)

	now := time.Now()
	if conv.GatePassedAt == nil {
		if res := gate.Evaluate(conv, p.gateCfg, now); res.Passed {
			conv.GatePassedAt = &now
			p.logger.InfoContext(ctx, "signal gate passed", "message_count", conv.MessageCount)
		}
	}
	conv.SignalScore = gate.Score(conv, now)

	if p.compressor.ShouldCompress(conv, now) {
		p.compressor.Compress(ctx, conv)
	}

	if created {
		err = p.stores.Conversations().Create(ctx, conv)
	} else {
		err = p.stores.Conversations().Update(ctx, conv)
	}
	if err != nil {
		return fmt.Errorf("persisting conversation: %w", err)
	}

	if trigger := p.buffer.Ingest(ctx, event); trigger != nil {
		// Analysis failure must not fail ingestion: the event is already
		// persisted and a later trigger can re-run the analysis.
		if err := p.HandleTrigger(ctx, *trigger); err != nil {
			p.logger.ErrorContext(ctx, "volume trigger processing failed", "error", err)
		}
	}

	return nil
}

// HandleTrigger processes a closed window: gate check, cooldown check, the
// two-phase worthiness/generation analysis, insight persistence, and, for
// the first worthy insight of a conversation, notification.
func (p *Pipeline) HandleTrigger(ctx context.Context, trigger model.Trigger) error {
	if len(trigger.Events) == 0 {
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(trigger.Key.String()),
		Trigger:         logger.Ptr(string(trigger.Kind)),
		Component:       "pulse.pipeline",
	})

	conv, err := p.stores.Conversations().GetByKey(ctx, trigger.Key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.WarnContext(ctx, "trigger for unknown conversation, skipping")
			return nil
		}
		return fmt.Errorf("fetching conversation: %w", err)
	}

	now := time.Now()

	if res := gate.Evaluate(conv, p.gateCfg, now); !res.Passed {
		p.logger.InfoContext(ctx, "window closed below gate, accumulating",
			"reason", res.Reason,
			"window_size", len(trigger.Events))
		return nil
	}

	if conv.LastAnalyzedAt != nil && now.Sub(*conv.LastAnalyzedAt) < p.cooldown {
		p.logger.InfoContext(ctx, "conversation in analysis cooldown, skipping",
			"last_analyzed_at", *conv.LastAnalyzedAt)
		return nil
	}

	text := analysisText(conv, trigger.Events)

	worthiness, err := p.analyzer.CheckWorthiness(ctx, text)
	if err != nil {
		if analysis.IsRateLimited(err) {
			var rle *ratelimit.RateLimitError
			if errors.As(err, &rle) {
				p.logger.WarnContext(ctx, "analysis rate limited, deferring",
					"retry_after", rle.RetryAfter)
			}
			return nil
		}
		return fmt.Errorf("worthiness check: %w", err)
	}

	conv.LastAnalyzedAt = &now

	insight := newInsight(conv, worthiness)

	if worthiness.Worthy {
		// The expensive call runs only for worthy windows.
		post, genErr := p.analyzer.GeneratePost(ctx, worthiness.Topic, worthiness.Summary, worthiness.Framing)
		if genErr != nil {
			p.logger.WarnContext(ctx, "content generation failed, notifying with summary", "error", genErr)
		} else {
			insight.SuggestedPost = post
		}
	}

	if err := p.stores.Insights().Create(ctx, insight); err != nil {
		return fmt.Errorf("persisting insight: %w", err)
	}
	if err := p.stores.Conversations().Update(ctx, conv); err != nil {
		return fmt.Errorf("persisting conversation: %w", err)
	}

	if !worthiness.Worthy {
		p.logger.InfoContext(ctx, "window analyzed, not worthy",
			"confidence", worthiness.Confidence,
			"window_size", len(trigger.Events))
		return nil
	}

	// Worthy insights for already-notified conversations are persisted above
	// but never redelivered.
	delivery, err := p.notifier.Notify(ctx, insight, conv)
	if err != nil {
		return fmt.Errorf("notifying: %w", err)
	}

	p.logger.InfoContext(ctx, "worthy insight processed",
		"status", string(delivery.Status),
		"topic", insight.Topic,
		"confidence", insight.Confidence)

	return nil
}

// newInsight materializes one analysis outcome against the summary version
// it was evaluated on.
func newInsight(conv *model.Conversation, w *analysis.Worthiness) *model.Insight {
	return &model.Insight{
		ID:             id.New(),
		ConversationID: conv.ID,
		Worthy:         w.Worthy,
		Confidence:     w.Confidence,
		Topic:          w.Topic,
		Summary:        w.Summary,
		Framing:        w.Framing,
		SummaryVersion: conv.SummaryVersion,
	}
}

func (p *Pipeline) loadOrCreateConversation(ctx context.Context, event model.Event) (*model.Conversation, bool, error) {
	conv, err := p.stores.Conversations().GetByKey(ctx, event.Key())
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("fetching conversation: %w", err)
	}

	return &model.Conversation{
		ID:             id.New(),
		WorkspaceID:    event.WorkspaceID,
		ChannelID:      event.ChannelID,
		ThreadID:       event.ThreadID,
		WindowStartAt:  event.Timestamp,
		LastActivityAt: event.Timestamp,
	}, true, nil
}

func (p *Pipeline) applyEvent(conv *model.Conversation, event model.Event) {
	// A gap longer than the silence window is a conversational boundary:
	// restart the temporal anchor and velocity basis so a conversation that
	// wakes up after hours of quiet is judged on its current activity, not
	// its lifetime.
	if conv.MessageCount > 0 && p.silence > 0 && event.Timestamp.Sub(conv.LastActivityAt) >= p.silence {
		conv.WindowStartAt = event.Timestamp
		conv.WindowMessageCount = 0
	}

	conv.MessageCount++
	conv.WindowMessageCount++
	if !conv.HasParticipant(event.UserID) {
		conv.Participants = append(conv.Participants, event.UserID)
	}
	conv.WordCount += len(strings.Fields(event.Text))
	conv.LastActivityAt = event.Timestamp

	line := fmt.Sprintf("%s: %s", event.UserID, event.Text)
	if conv.PendingText == "" {
		conv.PendingText = line
	} else {
		conv.PendingText += "\n" + line
	}
	conv.PendingEvents++
}

// analysisText combines the rolling summary with the closed window so the
// model sees long-range context without unbounded cost.
func analysisText(conv *model.Conversation, events []model.Event) string {
	var sb strings.Builder
	if conv.Summary != "" {
		sb.WriteString("Summary of earlier discussion:\n")
		sb.WriteString(conv.Summary)
		sb.WriteString("\n\nRecent messages:\n")
	}
	for _, e := range events {
		fmt.Fprintf(&sb, "%s: %s\n", e.UserID, e.Text)
	}
	return sb.String()
}
