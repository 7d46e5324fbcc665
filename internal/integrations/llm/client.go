package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"ai-server/internal/domain"
)

// chatRequest is the request shape for a structured-output completion call.
type chatRequest struct {
	Model               string               `json:"model"`
	Messages            []domain.ChatMessage `json:"messages"`
	ResponseFormat      *responseFormat      `json:"response_format,omitempty"`
	MaxCompletionTokens int                  `json:"max_completion_tokens,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal response shape returned by a chat completions
// endpoint.
type chatResponse struct {
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
}

// KeySource supplies the provider API key. Implementations may read it from
// the environment or fetch it from a secret store on first use.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource backed by a fixed string, typically an environment
// variable. An empty key fails at call time so a missing credential surfaces
// as an upstream error on the first request that needs it.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if strings.TrimSpace(string(k)) == "" {
		return "", errors.New("llm: API key not configured")
	}
	return string(k), nil
}

// HTTPStatusError captures non-JSON or non-2xx upstream responses with
// status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI-compatible chat completions client for a single
// provider endpoint.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	keys       KeySource

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient = &http.Client{Timeout: d}
	}
}

// NewClient creates a Client for one provider endpoint. The API key is
// resolved from keys on the first call and reused for the lifetime of the
// process.
func NewClient(name, baseURL string, keys KeySource, opts ...Option) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("llm: provider name must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("llm: base URL must not be empty")
	}
	if keys == nil {
		return nil, errors.New("llm: key source must not be nil")
	}
	c := &Client{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the provider name the client was constructed with.
func (c *Client) Name() string {
	return c.name
}

// resolveAPIKey fetches the API key from the key source on the first call and
// returns the cached result on every subsequent call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = c.keys.APIKey(ctx)
	})
	return c.apiKey, c.keyErr
}

func (c *Client) completionsURL() string {
	if strings.HasSuffix(c.baseURL, "/v1") {
		return c.baseURL + "/chat/completions"
	}
	return c.baseURL + "/v1/chat/completions"
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 60s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// Forward posts body to the provider's chat completions endpoint and returns
// the provider's status code and JSON payload unchanged. Any status is
// mirrored as long as the provider returned JSON; transport failures and
// non-JSON bodies are reported as errors.
func (c *Client) Forward(ctx context.Context, body map[string]any) (int, json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	status, raw, err := c.post(ctx, data)
	if err != nil {
		return 0, nil, err
	}
	if !json.Valid(raw) {
		return 0, nil, &HTTPStatusError{
			StatusCode: status,
			URL:        c.completionsURL(),
			Body:       truncate(string(raw), 4096),
		}
	}
	return status, raw, nil
}

// ChatJSON runs a chat completion that asks the model for a single JSON
// object and returns the first choice's content. Non-2xx responses are
// reported as *HTTPStatusError.
func (c *Client) ChatJSON(ctx context.Context, model string, messages []domain.ChatMessage, maxCompletionTokens int) (string, error) {
	if model == "" {
		return "", errors.New("llm: model must not be empty")
	}

	data, err := json.Marshal(chatRequest{
		Model:               model,
		Messages:            messages,
		ResponseFormat:      &responseFormat{Type: "json_object"},
		MaxCompletionTokens: maxCompletionTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	status, raw, err := c.post(ctx, data)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &HTTPStatusError{
			StatusCode: status,
			URL:        c.completionsURL(),
			Body:       truncate(string(raw), 4096),
		}
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("llm: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return 0, nil, err
	}

	url := c.completionsURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("llm: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("llm: %s request failed: %w", c.name, err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("llm: read response body: %w", err)
	}
	return res.StatusCode, raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
