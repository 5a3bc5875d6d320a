// Package openai calls an OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/pysugar/report-nexus/internal/llm"
)

const (
	defaultModel   = "gpt-4o"
	defaultTimeout = 2 * time.Minute
)

// Client implements llm.Generator with go-openai.
type Client struct {
	client *goopenai.Client
	model  string
}

// NewClient creates a Client. An empty baseURL targets api.openai.com.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(apiKey, model, baseURL, timeout, nil)
}

// NewClientWithHTTP creates a Client with an optional custom HTTP client.
func NewClientWithHTTP(apiKey, model, baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	cfg := goopenai.DefaultConfig(strings.TrimSpace(apiKey))
	if b := strings.TrimSpace(baseURL); b != "" {
		cfg.BaseURL = strings.TrimRight(b, "/")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient
	return &Client{client: goopenai.NewClientWithConfig(cfg), model: strings.TrimSpace(model)}
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	var msgs []goopenai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})

	creq := goopenai.ChatCompletionRequest{Model: c.model, Messages: msgs}
	if req.JSON {
		creq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "content_filter" {
			return "", fmt.Errorf("openai: %s: %w", apiErr.Message, llm.ErrBlocked)
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == goopenai.FinishReasonContentFilter {
		return "", fmt.Errorf("openai response filtered: %w", llm.ErrBlocked)
	}
	return choice.Message.Content, nil
}
