package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// webhookPoster delivers messages by POSTing JSON to a chat-platform
// webhook. The endpoint is expected to respond 2xx with a JSON body
// carrying the posted message's identifier under "message_id".
type webhookPoster struct {
	url    string
	client *http.Client
}

func NewWebhookPoster(url string, timeout time.Duration) Poster {
	return &webhookPoster{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type webhookPayload struct {
	ChannelID string  `json:"channel_id"`
	ThreadID  *string `json:"thread_id,omitempty"`
	Text      string  `json:"text"`
}

func (p *webhookPoster) Post(ctx context.Context, channelID string, threadID *string, text string) (string, error) {
	body, err := json.Marshal(webhookPayload{
		ChannelID: channelID,
		ThreadID:  threadID,
		Text:      text,
	})
	if err != nil {
		return "", fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return gjson.GetBytes(respBody, "message_id").String(), nil
}
