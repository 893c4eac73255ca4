package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenAICompleteSendsChatRequest(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 1;"}}]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		ModelConfig: ModelConfig{
			Model:       "gpt-5",
			Temperature: 0.1,
		},
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	text, err := provider.Complete(context.Background(), "count the customers")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 1;" {
		t.Fatalf("Complete() = %q", text)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q", gotMethod)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPayload["model"] != "gpt-5" {
		t.Fatalf("model = %v", gotPayload["model"])
	}
	messages, ok := gotPayload["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("messages = %v", gotPayload["messages"])
	}
	message := messages[0].(map[string]any)
	if message["role"] != "user" {
		t.Fatalf("role = %v", message["role"])
	}
	if !strings.Contains(message["content"].(string), "count the customers") {
		t.Fatalf("content = %v", message["content"])
	}
}

func TestOpenAICompleteRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 2;"}}]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		ModelConfig: ModelConfig{MaxTransientRetries: 2},
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	provider.backoff = func(int) time.Duration { return 0 }

	text, err := provider.Complete(context.Background(), "q")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "SELECT 2;" {
		t.Fatalf("Complete() = %q", text)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestOpenAICompleteAuthFailureIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:     server.URL,
		APIKey:      "bad-key",
		ModelConfig: ModelConfig{MaxTransientRetries: 3},
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	provider.backoff = func(int) time.Duration { return 0 }

	_, err = provider.Complete(context.Background(), "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrProviderUnavailable", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, auth failures must not be retried", calls)
	}
}

func TestOpenAICompleteExhaustsTransientRetries(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{
		BaseURL:     server.URL,
		APIKey:      "test-key",
		ModelConfig: ModelConfig{MaxTransientRetries: 1},
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}
	provider.backoff = func(int) time.Duration { return 0 }

	_, err = provider.Complete(context.Background(), "q")
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrProviderUnavailable", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want initial try plus one retry", calls)
	}
}

func TestOpenAICompleteEmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"   "}}]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	_, err = provider.Complete(context.Background(), "q")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("Complete() error = %v, want ErrEmptyCompletion", err)
	}
}

func TestNewOpenAIProviderValidates(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "https://api.openai.com"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	if provider.baseURL != defaultOpenAIBaseURL {
		t.Fatalf("unexpected default base URL %q", provider.baseURL)
	}
}
