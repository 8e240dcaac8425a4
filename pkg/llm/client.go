// Package llm provides a client for an OpenAI-compatible chat completion provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single provider call so a hung provider
	// surfaces as an error instead of blocking the pipeline run forever.
	DefaultTimeout = 120 * time.Second

	completionsPath = "/chat/completions"
)

// Options control a single completion request.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// StatusError is returned when the provider responds with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Config holds provider connection settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls an OpenAI-compatible chat completions endpoint
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a completion provider client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("provider model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}, nil
}

// chatMessage is one entry in the chat completion request
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat completion request body
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse is the chat completion response body
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system/user prompt pair and returns the raw response text.
// Non-2xx responses propagate as *StatusError, never as empty output.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal completion request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + completionsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call completion provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("completion provider request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(body), 500)),
		)
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse provider response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("provider error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", errors.New("provider returned no choices")
	}

	c.logger.Info("completion received",
		slog.String("model", c.cfg.Model),
		slog.Duration("duration", time.Since(start)),
	)

	return chatResp.Choices[0].Message.Content, nil
}

// truncate caps a string for log and error output
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
