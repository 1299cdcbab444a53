// Package llm talks to an OpenAI-compatible chat completions endpoint and
// implements the planning and auto-fix collaborators on top of it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4.1-mini"
)

// ErrMissingAPIKey is returned when a request is attempted without a key
var ErrMissingAPIKey = errors.New("llm: missing API key")

// APIError is an error reported by the completions endpoint
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: %s (status %d): %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("llm: status %d: %s", e.Status, e.Message)
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends chat completion requests
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature *float64
	http        *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API base URL
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel overrides the model name
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the default sampling temperature
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client. An empty apiKey is accepted here and
// reported as ErrMissingAPIKey on first use.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has an API key
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends messages and returns the trimmed text of the first choice.
// temperature overrides the client default when non-nil.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature *float64) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if temperature == nil {
		temperature = c.temperature
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}

	var out chatResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if decodeErr == nil && out.Error != nil {
			apiErr.Type = out.Error.Type
			apiErr.Message = out.Error.Message
		}
		return "", apiErr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("llm: decode response: %w", decodeErr)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm: response contained no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
