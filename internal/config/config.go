package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floegence/llm-loop-lab/internal/provider"
)

// Config is the on-disk configuration for llm-loop.
//
// Notes:
//   - Secrets (api keys) must never be stored here. Keys are read from the
//     environment variable named by APIKeyEnv.
//   - Field names are snake_case to match the run-log surface.
type Config struct {
	// ProviderType is one of: "ollama" | "openai_compatible" | "anthropic".
	// When empty, "ollama" applies.
	ProviderType string `json:"provider_type,omitempty"`

	// BaseURL overrides the endpoint base URL.
	// When empty, provider defaults apply (except openai_compatible where base_url is required).
	BaseURL string `json:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key, for
	// providers that need one. Ollama does not.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// Model is the default model name for runs that do not pass one.
	Model string `json:"model,omitempty"`

	// RequestTimeoutSeconds bounds each chat request. Defaults to 120.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

const (
	DefaultModel          = "llama3.2:3b"
	DefaultRequestTimeout = 120 * time.Second
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch strings.TrimSpace(c.ProviderType) {
	case "", provider.TypeOllama, provider.TypeOpenAICompatible, provider.TypeAnthropic:
	default:
		return fmt.Errorf("invalid provider_type %q", c.ProviderType)
	}
	if strings.TrimSpace(c.ProviderType) == provider.TypeOpenAICompatible && strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("openai_compatible requires base_url")
	}
	if c.RequestTimeoutSeconds < 0 {
		return errors.New("request_timeout_seconds must be >= 0")
	}
	return nil
}

// EffectiveProviderType returns the configured provider type, defaulting to
// the local Ollama endpoint.
func (c *Config) EffectiveProviderType() string {
	if c == nil {
		return provider.TypeOllama
	}
	t := strings.TrimSpace(c.ProviderType)
	if t == "" {
		return provider.TypeOllama
	}
	return t
}

// EffectiveBaseURL resolves config, then the OLLAMA_HOST environment variable
// (ollama only), then the provider default.
func (c *Config) EffectiveBaseURL() string {
	if c != nil {
		if u := strings.TrimSpace(c.BaseURL); u != "" {
			return u
		}
	}
	if c.EffectiveProviderType() == provider.TypeOllama {
		if host := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); host != "" {
			if !strings.Contains(host, "://") {
				host = "http://" + host
			}
			return host
		}
		return provider.DefaultOllamaBaseURL
	}
	return ""
}

// EffectiveAPIKey reads the key from the configured environment variable.
// Empty when no variable is configured or the variable is unset.
func (c *Config) EffectiveAPIKey() string {
	if c == nil {
		return ""
	}
	name := strings.TrimSpace(c.APIKeyEnv)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func (c *Config) EffectiveModel() string {
	if c != nil {
		if m := strings.TrimSpace(c.Model); m != "" {
			return m
		}
	}
	return DefaultModel
}

func (c *Config) EffectiveRequestTimeout() time.Duration {
	if c == nil || c.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// DefaultConfigPath returns the default config path:
//
//	~/.llm-loop/config.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "llm-loop.config.json"
	}
	return filepath.Join(home, ".llm-loop", "config.json")
}

// Load reads and validates a config file. A missing file at the default path
// is not an error for callers; they should fall back to an empty Config.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Write atomically.
	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
