// Package analysis wraps the generative-model calls made by the pipeline:
// the cheap worthiness check, the content generation pass, and the rolling
// summary merge. All calls go through rate-limit admission, a request
// timeout, and bounded retry with exponential backoff.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"threadpulse.app/pulse/common/llm"
	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/ratelimit"
)

// Worthiness is the parsed result of the first analysis phase.
type Worthiness struct {
	Worthy     bool    `json:"worthy"`
	Confidence float64 `json:"confidence"`
	Topic      string  `json:"topic"`
	Summary    string  `json:"summary"`
	Framing    string  `json:"framing"`
}

type Client struct {
	chat    llm.ChatClient
	limiter *ratelimit.Limiter
	cfg     config.AnalysisConfig
	logger  *slog.Logger
}

func NewClient(chat llm.ChatClient, limiter *ratelimit.Limiter, cfg config.AnalysisConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{chat: chat, limiter: limiter, cfg: cfg, logger: logger}
}

const worthinessSystem = `You evaluate chat conversations for a team and decide whether they contain an insight worth surfacing: a decision, a useful discovery, a recurring problem, or a discussion others would want to know about. Respond with a single JSON object and nothing else.`

// CheckWorthiness runs the cheap first analysis phase over conversation
// text. Malformed model output degrades to a conservative not-worthy
// result; only transport-level failures surface as errors. Results below
// the configured confidence threshold are forced to not worthy regardless
// of the model's own claim.
func (c *Client) CheckWorthiness(ctx context.Context, text string) (*Worthiness, error) {
	prompt := fmt.Sprintf(
		"Conversation:\n%s\n\nRespond with a JSON object matching this schema:\n%s",
		text, llm.SchemaJSON(Worthiness{}))

	raw, err := c.complete(ctx, worthinessSystem, prompt)
	if err != nil {
		return nil, err
	}

	result := c.parseWorthiness(ctx, raw)

	if result.Worthy && result.Confidence < c.cfg.ConfidenceThreshold {
		c.logger.InfoContext(ctx, "worthiness below confidence threshold, forcing not worthy",
			"confidence", result.Confidence,
			"threshold", c.cfg.ConfidenceThreshold,
			"topic", result.Topic)
		result.Worthy = false
	}

	return result, nil
}

// parseWorthiness extracts the first JSON object from free-text model
// output. Parse failure is not an error: the conservative default is a
// not-worthy result.
func (c *Client) parseWorthiness(ctx context.Context, raw string) *Worthiness {
	obj, ok := ExtractObject(raw)
	if !ok {
		c.logger.WarnContext(ctx, "no JSON object in worthiness response, defaulting to not worthy",
			"response", truncate(raw, 200))
		return &Worthiness{Worthy: false}
	}

	return &Worthiness{
		Worthy:     gjson.Get(obj, "worthy").Bool(),
		Confidence: gjson.Get(obj, "confidence").Float(),
		Topic:      gjson.Get(obj, "topic").String(),
		Summary:    gjson.Get(obj, "summary").String(),
		Framing:    gjson.Get(obj, "framing").String(),
	}
}

const generateSystem = `You draft a short, engaging post surfacing an insight from a team conversation. Write plain text, no hashtags, no preamble.`

// GeneratePost runs the expensive second phase: turning a worthy topic and
// summary into the notification payload. The platform length ceiling is
// enforced by truncation if the model overshoots.
func (c *Client) GeneratePost(ctx context.Context, topic, summary, tone string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nSummary: %s\n", topic, summary)
	if tone != "" {
		fmt.Fprintf(&sb, "Match the tone of this excerpt:\n%s\n", truncate(tone, 500))
	}
	fmt.Fprintf(&sb, "Maximum length: %d characters.", c.cfg.MaxPostLength)

	raw, err := c.complete(ctx, generateSystem, sb.String())
	if err != nil {
		return "", err
	}

	post := strings.TrimSpace(raw)
	if c.cfg.MaxPostLength > 0 {
		runes := []rune(post)
		if len(runes) > c.cfg.MaxPostLength {
			post = string(runes[:c.cfg.MaxPostLength])
		}
	}
	return post, nil
}

const mergeSystem = `You maintain a rolling summary of an ongoing chat conversation. Merge the new messages into the existing summary, preserving decisions, questions and participants. Respond with the updated summary text only.`

// MergeSummary folds newly buffered text into the existing rolling summary,
// bounded to maxWords.
func (c *Client) MergeSummary(ctx context.Context, existing, pending string, maxWords int) (string, error) {
	prompt := fmt.Sprintf(
		"Existing summary:\n%s\n\nNew messages:\n%s\n\nKeep the updated summary under %d words.",
		existing, pending, maxWords)

	raw, err := c.complete(ctx, mergeSystem, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// complete performs one logical model call: rate-limit admission first
// (RateLimited propagates immediately so the caller can schedule its own
// backoff), then bounded retry with exponential backoff on transient
// failures, each attempt under the request timeout.
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Attempt(); err != nil {
			return "", err
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		resp, err := c.chat.Complete(reqCtx, llm.Request{
			System: system,
			Prompt: prompt,
		})
		cancel()
		if err == nil {
			return resp.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.WarnContext(ctx, "analysis call failed, will retry",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"error", err)
	}

	return "", fmt.Errorf("analysis call failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// IsRateLimited reports whether err came from rate-limit admission.
func IsRateLimited(err error) bool {
	return errors.Is(err, ratelimit.ErrRateLimited)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
