package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so business context (conversation key,
// channel id, etc.) shows up in every log statement without being threaded by hand.
type LogFields struct {
	ConversationKey *string // Stable key grouping events (workspace:channel[:thread])
	ChannelID       *string // Origin channel ID
	ThreadID        *string // Origin thread ID, if the conversation lives in a thread
	WorkspaceID     *string // Workspace ID
	UserID          *string // Author of the event being processed
	MessageID       *string // Redis stream message ID
	Trigger         *string // Window trigger kind ("volume", "silence")
	Component       string  // Component name (e.g. "pulse.buffer.manager")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.ConversationKey != nil {
		result.ConversationKey = new.ConversationKey
	}
	if new.ChannelID != nil {
		result.ChannelID = new.ChannelID
	}
	if new.ThreadID != nil {
		result.ThreadID = new.ThreadID
	}
	if new.WorkspaceID != nil {
		result.WorkspaceID = new.WorkspaceID
	}
	if new.UserID != nil {
		result.UserID = new.UserID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Trigger != nil {
		result.Trigger = new.Trigger
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ChannelID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like prompts or model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
