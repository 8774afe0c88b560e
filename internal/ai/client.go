// Package ai talks to an OpenAI-compatible chat completions endpoint and
// wraps each call in the rate limiter, circuit breaker and retry layers.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"leadchat_backend/platform/config"
	"leadchat_backend/platform/resilience"
)

// Client is a thin chat-completions HTTP client. It returns a StatusError
// for non-2xx responses so the error classifier can decide retryability
// by status code.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.GetAIBaseURL(), "/"),
		apiKey:  cfg.GetAIAPIKey(),
		model:   cfg.GetAIModel(),
		http:    &http.Client{Timeout: cfg.GetAITimeout()},
	}
}

type chatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content,omitempty"`
}

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []requestMsg `json:"messages"`
	Temperature float64      `json:"temperature"`
}

type requestMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// RawCompletion is the raw model output for a single admitted call.
type RawCompletion struct {
	Text       string
	TokensUsed int
}

// Complete performs one chat completion call. The response content is
// normalized to a string even when the provider returns structured
// content; missing token usage defaults to zero.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (RawCompletion, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []requestMsg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return RawCompletion{}, fmt.Errorf("marshal completion request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return RawCompletion{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return RawCompletion{}, fmt.Errorf("ai request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawCompletion{}, fmt.Errorf("read ai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return RawCompletion{}, resilience.NewStatusError(resp.StatusCode,
			fmt.Errorf("ai provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return RawCompletion{}, fmt.Errorf("decode ai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return RawCompletion{}, fmt.Errorf("ai response contained no choices")
	}

	return RawCompletion{
		Text:       normalizeContent(parsed.Choices[0].Message.Content),
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// normalizeContent turns the message content into a plain string. Providers
// usually return a JSON string, but structured content is serialized
// verbatim instead of being rejected.
func normalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
