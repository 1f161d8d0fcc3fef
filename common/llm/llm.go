// Package llm wraps the supported generative-model providers behind a
// single completion client. Provider selection is configuration-driven.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string // Required: API key for the provider
	BaseURL   string // Optional: custom API endpoint
	Model     string // Model name (e.g., "gpt-4o-mini", "claude-sonnet-4-5-20250514")
	MaxTokens int    // Default completion budget for requests that don't set one
}

// ChatClient performs a single text-in/text-out completion.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// Request contains one completion turn.
type Request struct {
	System      string // Optional system prompt
	Prompt      string // User content
	MaxTokens   int
	Temperature *float64
}

// Response contains the model's completion.
type Response struct {
	Content          string
	FinishReason     string // "stop", "length"
	PromptTokens     int
	CompletionTokens int
}

// NewChatClient creates a ChatClient for the configured provider.
// Defaults to OpenAI if no provider is specified.
func NewChatClient(cfg Config) (ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// SchemaJSON reflects a JSON schema from an instance value and renders it
// as a compact JSON string, suitable for embedding in a prompt that asks
// the model to respond with a matching object.
func SchemaJSON(v any) string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(data)
}
