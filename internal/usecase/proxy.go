package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ai-server/internal/domain"
)

// LLMRouter dispatches calls to the provider that owns the requested model.
// llm.Router satisfies this interface.
type LLMRouter interface {
	Forward(ctx context.Context, model string, body map[string]any) (int, json.RawMessage, error)
	ChatJSON(ctx context.Context, model string, messages []domain.ChatMessage, maxCompletionTokens int) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// CompletionService proxies chat completion requests to the configured
// providers without retrying or rewriting the payload beyond the GPT-5
// token-parameter shim.
type CompletionService struct {
	router LLMRouter
}

type CompleteInput struct {
	Body map[string]any
}

// CompleteOutput mirrors the provider response: Status is the upstream HTTP
// status and Payload its JSON body, both unchanged.
type CompleteOutput struct {
	Status  int
	Payload json.RawMessage
}

func NewCompletionService(router LLMRouter) (*CompletionService, error) {
	if router == nil {
		return nil, errors.New("usecase: llm router must not be nil")
	}
	return &CompletionService{router: router}, nil
}

func (s *CompletionService) Complete(ctx context.Context, in CompleteInput) (CompleteOutput, error) {
	model, err := validateCompletionBody(in.Body)
	if err != nil {
		return CompleteOutput{}, err
	}

	body := normalizeTokenParams(model, in.Body)

	status, payload, err := s.router.Forward(ctx, model, body)
	if err != nil {
		if code, ok := upstreamStatusCode(err); ok && code == http.StatusTooManyRequests {
			return CompleteOutput{}, newError(ErrorRateLimited, "provider_rate_limited", err)
		}
		return CompleteOutput{}, newError(ErrorUpstream, "provider_error", err)
	}
	return CompleteOutput{Status: status, Payload: payload}, nil
}

func validateCompletionBody(body map[string]any) (string, error) {
	if body == nil {
		return "", newError(ErrorInvalidInput, "empty_body", nil)
	}
	model, ok := body["model"].(string)
	if !ok || strings.TrimSpace(model) == "" {
		return "", newError(ErrorInvalidInput, "missing_model", nil)
	}
	rawMessages, ok := body["messages"].([]any)
	if !ok || len(rawMessages) == 0 {
		return "", newError(ErrorInvalidInput, "missing_messages", nil)
	}
	for _, m := range rawMessages {
		msg, ok := m.(map[string]any)
		if !ok {
			return "", newError(ErrorInvalidInput, "malformed_message", nil)
		}
		role, _ := msg["role"].(string)
		if !domain.KnownRole(role) {
			return "", newError(ErrorInvalidInput, "unknown_role", nil)
		}
	}
	return model, nil
}

// normalizeTokenParams renames max_tokens to max_completion_tokens for gpt-5
// models, which reject the older parameter name. The input map is not
// mutated.
func normalizeTokenParams(model string, body map[string]any) map[string]any {
	if !strings.HasPrefix(model, "gpt-5") {
		return body
	}
	maxTokens, ok := body["max_tokens"]
	if !ok {
		return body
	}
	if _, ok := body["max_completion_tokens"]; ok {
		return body
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	delete(out, "max_tokens")
	out["max_completion_tokens"] = maxTokens
	return out
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
