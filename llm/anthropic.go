package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicConfig contains Anthropic client configuration
type AnthropicConfig struct {
	APIKey        string
	Model         string
	BaseURL       string // Optional, for gateways and tests
	MaxTokens     int64
	Timeout       time.Duration
	MaxConcurrent int
}

// AnthropicClient implements Completer on the Anthropic Messages API
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	tokens int64
	slots  slots
}

// NewAnthropicClient creates a client for the Anthropic Messages API
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	if config.Model == "" {
		config.Model = DefaultAnthropicModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithHTTPClient(&http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client: &client,
		model:  config.Model,
		tokens: config.MaxTokens,
		slots:  newSlots(config.MaxConcurrent),
	}
}

// Complete sends messages to Claude. System turns become the system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.tokens,
	}
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	if err := c.slots.acquire(ctx); err != nil {
		return "", fmt.Errorf("failed waiting for LLM slot: %w", err)
	}
	defer c.slots.release()

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	var parts []string
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrUnexpectedResponseShape
	}
	return strings.Join(parts, ""), nil
}
