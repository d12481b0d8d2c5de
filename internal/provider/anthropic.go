package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxOutputTokens = 1024

// anthropicClient adapts the Anthropic Messages API.
//
// Notes:
// - seed and repeat_penalty are not part of this surface and are ignored.
// - There is no JSON format constraint; the prompt contract has to carry it.
type anthropicClient struct {
	client anthropic.Client
}

func newAnthropicClient(baseURL string, apiKey string, timeout time.Duration) *anthropicClient {
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(strings.TrimSpace(apiKey)),
		aoption.WithRequestTimeout(timeout),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &anthropicClient{client: anthropic.NewClient(opts...)}
}

func (c *anthropicClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(strings.TrimSpace(req.Model)),
		MaxTokens:   anthropicMaxOutputTokens,
		Temperature: anthropic.Float(req.Options.Temperature),
		TopP:        anthropic.Float(req.Options.TopP),
	}

	systemParts := make([]string, 0, 1)
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case "system":
			systemParts = append(systemParts, content)
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}
	if len(messages) == 0 {
		return "", errors.New("empty messages")
	}
	params.Messages = messages
	if system := strings.TrimSpace(strings.Join(systemParts, "\n\n")); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if msg == nil {
		return "", &TransportError{Err: errors.New("empty message response")}
	}
	parts := make([]string, 0, len(msg.Content))
	for _, block := range msg.Content {
		if txt := strings.TrimSpace(block.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

func (c *anthropicClient) Ping(ctx context.Context) error {
	_, err := c.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
