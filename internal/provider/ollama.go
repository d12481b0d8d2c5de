package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaBaseURL is the standard local Ollama endpoint.
const DefaultOllamaBaseURL = "http://localhost:11434"

type ollamaClient struct {
	baseURL string
	http    *http.Client
}

func newOllamaClient(baseURL string, timeout time.Duration) *ollamaClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultOllamaBaseURL
	}
	return &ollamaClient{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options"`
}

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

func (c *ollamaClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	options := map[string]any{
		"temperature":    req.Options.Temperature,
		"top_p":          req.Options.TopP,
		"repeat_penalty": req.Options.RepeatPenalty,
	}
	if req.Options.Seed != nil {
		options["seed"] = *req.Options.Seed
	}
	payload := ollamaChatRequest{
		Model:    strings.TrimSpace(req.Model),
		Messages: req.Messages,
		Stream:   false,
		Options:  options,
	}
	if req.Options.JSONOnly {
		payload.Format = "json"
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Err: fmt.Errorf("ollama /api/chat: status %d: %s", resp.StatusCode, bodySnippet(raw))}
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &TransportError{Err: fmt.Errorf("ollama /api/chat: invalid response body: %w", err)}
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// Ping checks endpoint reachability via the tags listing.
func (c *ollamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Err: fmt.Errorf("ollama /api/tags: status %d", resp.StatusCode)}
	}
	return nil
}

func bodySnippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	r := []rune(s)
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
