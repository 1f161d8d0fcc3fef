// Package summary keeps each conversation's rolling summary bounded. The
// pipeline decides when to compress; this package decides how.
package summary

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"threadpulse.app/pulse/core/config"
	"threadpulse.app/pulse/internal/analysis"
	"threadpulse.app/pulse/internal/model"
)

type Compressor struct {
	analyzer *analysis.Client
	cfg      config.SummaryConfig
	logger   *slog.Logger
}

func NewCompressor(analyzer *analysis.Client, cfg config.SummaryConfig, logger *slog.Logger) *Compressor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{analyzer: analyzer, cfg: cfg, logger: logger}
}

// ShouldCompress reports whether the conversation's pending buffer has grown
// past policy (event count, word count, or elapsed time since the last
// compression). The pipeline consults this on every event.
func (c *Compressor) ShouldCompress(conv *model.Conversation, now time.Time) bool {
	if conv.PendingText == "" {
		return false
	}
	if conv.PendingEvents >= c.cfg.PendingMaxEvents {
		return true
	}
	if len(strings.Fields(conv.PendingText)) >= c.cfg.PendingMaxWords {
		return true
	}
	if conv.LastCompressAt != nil && now.Sub(*conv.LastCompressAt) >= c.cfg.MaxInterval {
		return true
	}
	return false
}

// Compress merges the pending buffer into the rolling summary, bumps the
// summary version and clears the buffer. If the generative merge fails
// (after its own retries), it falls back to a deterministic emergency
// compression so the summary stays available, just degraded.
func (c *Compressor) Compress(ctx context.Context, conv *model.Conversation) {
	if conv.PendingText == "" {
		return
	}

	merged, err := c.analyzer.MergeSummary(ctx, conv.Summary, conv.PendingText, c.cfg.MaxWords)
	if err != nil {
		c.logger.WarnContext(ctx, "summary merge failed, using emergency compression", "error", err)
		merged = c.emergencyCompress(conv.Summary, conv.PendingText)
	}

	now := time.Now()
	conv.Summary = capWords(merged, c.cfg.MaxWords)
	conv.SummaryVersion++
	conv.PendingText = ""
	conv.PendingEvents = 0
	conv.LastCompressAt = &now
}

// emergencyCompress appends the last substantive lines of the pending buffer
// to the existing summary. Substantive means long enough to carry content;
// short interjections are dropped.
func (c *Compressor) emergencyCompress(existing, pending string) string {
	var substantive []string
	for _, line := range strings.Split(pending, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= c.cfg.MinLineLength {
			substantive = append(substantive, line)
		}
	}

	if len(substantive) > c.cfg.FallbackTailLines {
		substantive = substantive[len(substantive)-c.cfg.FallbackTailLines:]
	}

	if existing == "" {
		return strings.Join(substantive, "\n")
	}
	if len(substantive) == 0 {
		return existing
	}
	return existing + "\n" + strings.Join(substantive, "\n")
}

// capWords bounds text to max words, keeping the tail: in a rolling summary
// the most recent content is the most useful.
func capWords(s string, max int) string {
	if max <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= max {
		return strings.TrimSpace(s)
	}
	return strings.Join(words[len(words)-max:], " ")
}
