// Package gate implements the deterministic admission filter run before any
// generative analysis. Evaluation is pure: no I/O, cheap enough to run on
// every message.
package gate

import (
	"strings"
	"time"

	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/model"
)

// Result reports the gate decision. Reason names the first failing rule
// and is empty when the gate passes.
type Result struct {
	Passed bool
	Reason string
}

func fail(reason string) Result {
	return Result{Passed: false, Reason: reason}
}

// Evaluate runs all four rule families (volume, temporal, engagement,
// quality) over a conversation snapshot. All families must pass.
func Evaluate(conv *model.Conversation, cfg config.GateConfig, now time.Time) Result {
	// Volume
	if conv.MessageCount < cfg.MinMessages {
		return fail("min_messages")
	}
	if len(conv.Participants) < cfg.MinParticipants {
		return fail("min_participants")
	}
	if avgWords(conv) < cfg.MinAvgWords {
		return fail("min_avg_words")
	}
	if conv.WordCount < cfg.MinTotalWords {
		return fail("min_total_words")
	}

	// Temporal
	duration := conv.LastActivityAt.Sub(conv.WindowStartAt)
	if duration < cfg.MinDuration {
		return fail("min_duration")
	}
	if cfg.MaxDuration > 0 && duration > cfg.MaxDuration {
		return fail("max_duration")
	}
	if now.Sub(conv.WindowStartAt) < cfg.MinAge {
		return fail("min_age")
	}
	// Velocity is measured over the current window anchor, not the
	// conversation's lifetime, so an old conversation that is active right
	// now is not penalized for its quiet past.
	velocity := messagesPerHour(conv.WindowMessageCount, duration)
	if velocity < cfg.MinVelocity {
		return fail("min_velocity")
	}
	if cfg.MaxVelocity > 0 && velocity > cfg.MaxVelocity {
		return fail("max_velocity")
	}

	// Engagement
	if engagementRatio(conv) < cfg.MinEngagementRatio {
		return fail("min_engagement_ratio")
	}

	// Quality
	if cfg.RequireQuestion && !ContainsQuestion(conversationText(conv)) {
		return fail("require_question")
	}
	if UniquenessRatio(conversationText(conv)) < cfg.MinUniquenessRatio {
		return fail("min_uniqueness_ratio")
	}

	return Result{Passed: true}
}

func avgWords(conv *model.Conversation) float64 {
	if conv.MessageCount == 0 {
		return 0
	}
	return float64(conv.WordCount) / float64(conv.MessageCount)
}

func messagesPerHour(count int, duration time.Duration) float64 {
	hours := duration.Hours()
	if hours <= 0 {
		return 0
	}
	return float64(count) / hours
}

func engagementRatio(conv *model.Conversation) float64 {
	if conv.MessageCount == 0 {
		return 0
	}
	return float64(len(conv.Participants)) / float64(conv.MessageCount)
}

func conversationText(conv *model.Conversation) string {
	if conv.PendingText == "" {
		return conv.Summary
	}
	if conv.Summary == "" {
		return conv.PendingText
	}
	return conv.Summary + "\n" + conv.PendingText
}

var questionWords = []string{"what", "how", "why", "when", "where", "who", "which", "should", "could", "would"}

// ContainsQuestion reports whether the text carries interrogative content:
// a question mark, or a sentence opening with a question word.
func ContainsQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w+" ") || strings.Contains(lower, ". "+w+" ") || strings.Contains(lower, "\n"+w+" ") {
			return true
		}
	}
	return false
}

// UniquenessRatio computes distinct words / total words over the text.
// Repetitive or spammy content scores low. Empty text scores zero.
func UniquenessRatio(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,!?;:'\"()")] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}
