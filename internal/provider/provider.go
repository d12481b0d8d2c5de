package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	TypeOllama           = "ollama"
	TypeOpenAICompatible = "openai_compatible"
	TypeAnthropic        = "anthropic"
)

// Message is one role-tagged entry of a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Sampling carries the recognized sampling options. Adapters map what their
// backend supports and silently ignore the rest.
type Sampling struct {
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	Seed          *int    `json:"seed,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`

	// JSONOnly requests structured JSON-shaped output where the backend
	// supports a format constraint.
	JSONOnly bool `json:"-"`
}

// ChatRequest is one blocking inference call.
type ChatRequest struct {
	Model    string
	Messages []Message
	Options  Sampling
}

// Client is the external inference call capability. Chat returns the generated
// assistant text; any transport/protocol failure is fatal to the calling run.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	Ping(ctx context.Context) error
}

// TransportError wraps a failed call so runs can distinguish fatal transport
// failures from recoverable parse noise.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("inference call failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// New returns a Client for the given provider type.
//
// Supported types:
// - "ollama": native Ollama API (default; no api key required)
// - "openai_compatible": any OpenAI-compatible gateway (base_url required)
// - "anthropic"
func New(providerType string, baseURL string, apiKey string, timeout time.Duration) (Client, error) {
	providerType = strings.ToLower(strings.TrimSpace(providerType))
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	switch providerType {
	case "", TypeOllama:
		return newOllamaClient(baseURL, timeout), nil
	case TypeOpenAICompatible:
		if strings.TrimSpace(baseURL) == "" {
			return nil, errors.New("base_url is required for openai_compatible")
		}
		return newOpenAIClient(baseURL, apiKey, timeout), nil
	case TypeAnthropic:
		if strings.TrimSpace(apiKey) == "" {
			return nil, errors.New("missing provider api key")
		}
		return newAnthropicClient(baseURL, apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", providerType)
	}
}
