package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultHost = "chatgpt-42.p.rapidapi.com"
	DefaultPath = "/gpt4"
)

// Config contains chat completion client configuration
type Config struct {
	BaseURL       string // Defaults to https://<Host>
	Host          string
	Path          string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		Host:          DefaultHost,
		Path:          DefaultPath,
		Timeout:       60 * time.Second,
		MaxConcurrent: 3,
	}
}

// Client calls a RapidAPI-hosted chat completion endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	slots      slots
}

// NewClient creates a chat completion client
func NewClient(config Config) *Client {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://" + config.Host
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		slots: newSlots(config.MaxConcurrent),
	}
}

type chatRequest struct {
	Messages  []Message `json:"messages"`
	WebAccess bool      `json:"web_access"`
}

// Complete sends messages and returns the answer text
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	apiKey := strings.TrimSpace(c.config.APIKey)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body, err := json.Marshal(chatRequest{Messages: messages, WebAccess: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := c.slots.acquire(ctx); err != nil {
		return "", fmt.Errorf("failed waiting for LLM slot: %w", err)
	}
	defer c.slots.release()

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + c.config.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-rapidapi-key", apiKey)
	req.Header.Set("x-rapidapi-host", c.config.Host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncateBody(respBody)}
	}

	return ParseResponse(respBody)
}

type chatResponse struct {
	Result  json.RawMessage `json:"result"`
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Response json.RawMessage `json:"response"`
}

// ParseResponse reads the answer from a completion response body. The
// answer is taken from "result", then "choices[0].message.content", then
// "response". String answers are returned unquoted; object and array
// answers are returned as JSON text.
func ParseResponse(body []byte) (string, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponseShape, err)
	}

	candidates := []json.RawMessage{parsed.Result}
	if len(parsed.Choices) > 0 {
		candidates = append(candidates, parsed.Choices[0].Message.Content)
	}
	candidates = append(candidates, parsed.Response)

	for _, raw := range candidates {
		if text, ok := answerText(raw); ok {
			return text, nil
		}
	}
	return "", ErrUnexpectedResponseShape
}

// answerText reports the text of a present, non-empty answer field
func answerText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	switch string(trimmed) {
	case "null", "false", `""`:
		return "", false
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}
	return string(trimmed), true
}

func truncateBody(body []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
