// Package openai wraps OpenAI-compatible chat completion endpoints
// (OpenAI itself and Moonshot).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderOpenAI   = "openai"
	ProviderMoonshot = "moonshot"

	moonshotBaseURL = "https://api.moonshot.cn/v1"
)

// ErrEmptyResponse is returned when the endpoint answers without choices
var ErrEmptyResponse = errors.New("no response choices")

// Config selects and parameterizes a provider
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string // overrides the provider default when set
	Temperature float32
	MaxTokens   int
}

// Client is a chat completion client for one provider
type Client struct {
	client      *openai.Client
	provider    string
	model       string
	temperature float32
	maxTokens   int
}

// NewClient creates a client for cfg.Provider
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Provider)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	model := cfg.Model

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		if model == "" {
			model = openai.GPT4o
		}
	case ProviderMoonshot:
		config.BaseURL = moonshotBaseURL
		if model == "" {
			model = "moonshot-v1-32k"
		}
	default:
		return nil, fmt.Errorf("unknown provider %q (available: %s, %s)", cfg.Provider, ProviderOpenAI, ProviderMoonshot)
	}

	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderOpenAI
	}

	return &Client{
		client:      openai.NewClientWithConfig(config),
		provider:    provider,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Provider returns the provider name
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the model used for completions
func (c *Client) Model() string {
	return c.model
}

// Chat sends a system and a user message and returns the assistant reply.
// The caller bounds the call through ctx.
func (c *Client) Chat(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
