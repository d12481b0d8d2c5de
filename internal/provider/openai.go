package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oshared "github.com/openai/openai-go/shared"
)

// openAIClient talks to any OpenAI-compatible chat completions endpoint.
//
// Notes:
// - repeat_penalty is an Ollama-native option with no equivalent on this
//   surface; it is ignored here.
type openAIClient struct {
	client openai.Client
}

func newOpenAIClient(baseURL string, apiKey string, timeout time.Duration) *openAIClient {
	opts := []ooption.RequestOption{
		ooption.WithAPIKey(strings.TrimSpace(apiKey)),
		ooption.WithRequestTimeout(timeout),
	}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, ooption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &openAIClient{client: openai.NewClient(opts...)}
}

func (c *openAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case "system":
			messages = append(messages, openai.SystemMessage(content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(content))
		default:
			messages = append(messages, openai.UserMessage(content))
		}
	}
	if len(messages) == 0 {
		return "", errors.New("empty messages")
	}

	params := openai.ChatCompletionNewParams{
		Model:       oshared.ChatModel(strings.TrimSpace(req.Model)),
		Messages:    messages,
		Temperature: openai.Float(req.Options.Temperature),
		TopP:        openai.Float(req.Options.TopP),
	}
	if req.Options.Seed != nil {
		params.Seed = openai.Int(int64(*req.Options.Seed))
	}
	if req.Options.JSONOnly {
		obj := oshared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{OfJSONObject: &obj}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &TransportError{Err: errors.New("empty completion response")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *openAIClient) Ping(ctx context.Context) error {
	// The models listing is the cheapest widely-supported probe on
	// OpenAI-compatible gateways.
	_, err := c.client.Models.List(ctx)
	if err != nil {
		return &TransportError{Err: err}
	}
	return nil
}
