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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	ModelConfig
}

// GeminiProvider talks to the Gemini generateContent endpoint.
type GeminiProvider struct {
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	maxRetries      int
	client          *http.Client
	backoff         func(int) time.Duration
}

func NewGeminiProvider(cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{
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

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete sends one prompt and returns the raw completion text, with the
// same transient retry policy as the chat-completions client.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     p.temperature,
			MaxOutputTokens: p.maxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
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

func (p *GeminiProvider) complete(ctx context.Context, body []byte) (text string, retryable bool, err error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("%w: %v", ErrProviderUnavailable, ctx.Err())
		}
		return "", true, fmt.Errorf("request generate content: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read generate response body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, fmt.Errorf("generate content failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}
	if resp.StatusCode >= 400 {
		return "", false, fmt.Errorf("%w: generate content failed status=%d body=%s", ErrProviderUnavailable, resp.StatusCode, string(rawRespBody))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", false, fmt.Errorf("decode generate response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no candidates in response", ErrEmptyCompletion)
	}
	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), false, nil
}
