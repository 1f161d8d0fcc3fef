package gate

import (
	"strings"
	"time"

	"threadpulse.app/pulse/internal/model"
)

// Sub-score weights. The total is bounded to 0–100.
const (
	weightVolume     = 30
	weightSpan       = 20
	weightEngagement = 30
	weightLanguage   = 20
)

var decisionPhrases = []string{"should we", "let's", "lets ", "decide", "decision", "agree", "plan to", "we could", "proposal"}

// Score produces a bounded 0–100 signal score from weighted sub-scores.
// It exists purely for observability; it never gates behavior.
func Score(conv *model.Conversation, now time.Time) int {
	score := 0

	// Volume: saturates at 30 messages.
	msgs := conv.MessageCount
	if msgs > 30 {
		msgs = 30
	}
	score += weightVolume * msgs / 30

	// Temporal span: saturates at one hour of sustained conversation.
	span := conv.LastActivityAt.Sub(conv.WindowStartAt)
	if span > time.Hour {
		span = time.Hour
	}
	if span > 0 {
		score += int(float64(weightSpan) * span.Hours())
	}

	// Engagement: back-and-forth between many participants scores high.
	ratio := engagementRatio(conv)
	if ratio > 0.5 {
		ratio = 0.5
	}
	score += int(float64(weightEngagement) * ratio / 0.5)

	// Decision/question language in the accumulated text.
	text := strings.ToLower(conversationText(conv))
	lang := 0
	if ContainsQuestion(text) {
		lang += weightLanguage / 2
	}
	for _, phrase := range decisionPhrases {
		if strings.Contains(text, phrase) {
			lang += weightLanguage / 2
			break
		}
	}
	score += lang

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
