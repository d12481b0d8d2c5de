package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOllamaChat(t *testing.T) {
	t.Parallel()
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "  {\"answer\":\"hi\"}  "},
		})
	}))
	defer srv.Close()

	client := newOllamaClient(srv.URL, 5*time.Second)
	seed := 42
	text, err := client.Chat(context.Background(), ChatRequest{
		Model: "llama3.2:3b",
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "user"},
		},
		Options: Sampling{Temperature: 0.2, TopP: 0.95, Seed: &seed, RepeatPenalty: 1.1, JSONOnly: true},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if text != `{"answer":"hi"}` {
		t.Fatalf("text=%q", text)
	}

	if gotBody["model"] != "llama3.2:3b" {
		t.Fatalf("model=%v", gotBody["model"])
	}
	if gotBody["stream"] != false {
		t.Fatalf("stream=%v, want false", gotBody["stream"])
	}
	if gotBody["format"] != "json" {
		t.Fatalf("format=%v, want json", gotBody["format"])
	}
	options, _ := gotBody["options"].(map[string]any)
	if options["seed"] != float64(42) {
		t.Fatalf("seed=%v", options["seed"])
	}
	if options["repeat_penalty"] != 1.1 {
		t.Fatalf("repeat_penalty=%v", options["repeat_penalty"])
	}
}

func TestOllamaChatHTTPErrorIsTransport(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newOllamaClient(srv.URL, 5*time.Second)
	_, err := client.Chat(context.Background(), ChatRequest{Model: "missing"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("err=%T, want *TransportError", err)
	}
}

func TestOllamaPing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	client := newOllamaClient(srv.URL, 5*time.Second)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	srv.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping failure after server close")
	}
}

func TestNewProviderTypes(t *testing.T) {
	t.Parallel()
	if _, err := New("ollama", "", "", time.Second); err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, err := New("", "", "", time.Second); err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, err := New("openai_compatible", "", "", time.Second); err == nil {
		t.Fatalf("openai_compatible without base_url must fail")
	}
	if _, err := New("anthropic", "", "", time.Second); err == nil {
		t.Fatalf("anthropic without api key must fail")
	}
	if _, err := New("bogus", "", "", time.Second); err == nil {
		t.Fatalf("unknown type must fail")
	}
}
