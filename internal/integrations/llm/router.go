package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"ai-server/internal/domain"
)

// Default provider endpoints.
const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// Router dispatches each call to the provider that owns the requested model.
type Router struct {
	openai     *Client
	openrouter *Client
}

// NewRouter constructs a Router over the two supported providers.
func NewRouter(openai, openrouter *Client) (*Router, error) {
	if openai == nil {
		return nil, errors.New("llm: openai client must not be nil")
	}
	if openrouter == nil {
		return nil, errors.New("llm: openrouter client must not be nil")
	}
	return &Router{openai: openai, openrouter: openrouter}, nil
}

// IsOpenRouterModel reports whether the model identifier names an OpenRouter
// model. Convention: contains a vendor namespace ("qwen/qwen3-...") or ends
// with ":free".
func IsOpenRouterModel(model string) bool {
	return strings.Contains(model, "/") || strings.HasSuffix(model, ":free")
}

func (r *Router) clientFor(model string) *Client {
	if IsOpenRouterModel(model) {
		return r.openrouter
	}
	return r.openai
}

// Forward proxies body to the provider selected by model.
func (r *Router) Forward(ctx context.Context, model string, body map[string]any) (int, json.RawMessage, error) {
	return r.clientFor(model).Forward(ctx, body)
}

// ChatJSON runs a structured-output completion on the provider selected by
// model.
func (r *Router) ChatJSON(ctx context.Context, model string, messages []domain.ChatMessage, maxCompletionTokens int) (string, error) {
	return r.clientFor(model).ChatJSON(ctx, model, messages, maxCompletionTokens)
}
