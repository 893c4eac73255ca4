package nl2sql

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

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	ModelConfig
}

// OpenAIProvider talks to any chat-completions compatible endpoint.
type OpenAIProvider struct {
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	maxRetries      int
	client          *http.Client
	backoff         func(int) time.Duration
}

const defaultOpenAIBaseURL = "https://api.openai.com"

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          strings.TrimSpace(cfg.APIKey),
		model:           model,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		maxRetries:      cfg.MaxTransientRetries,
		client:          &http.Client{Timeout: timeout},
		backoff:         transientDelay,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends one prompt and returns the raw completion text. Rate limits,
// 5xx responses, and transport errors are retried with backoff up to the
// configured budget; anything else fails immediately.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": p.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": p.temperature,
	}
	if p.maxOutputTokens > 0 {
		payload["max_tokens"] = p.maxOutputTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, p.backoff(attempt)); err != nil {
				return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
			}
		}
		text, retryable, err := p.complete(ctx, body)
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyCompletion
			}
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

func (p *OpenAIProvider) complete(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
		}
		return "", true, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("%w: chat completion failed status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", false, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("%w: no choices in response", ErrEmptyCompletion)
	}
	return parsed.Choices[0].Message.Content, false, nil
}
