// Package gemini calls the Google AI Studio generateContent endpoint with a server-side API key.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pysugar/report-nexus/internal/llm"
	"github.com/pysugar/report-nexus/internal/util"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-pro"
	defaultTimeout = 2 * time.Minute

	maxResponseBytes = 8 << 20
)

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Client implements llm.Generator against AI Studio.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. Empty model, baseURL and timeout fall back to defaults.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(apiKey, model, baseURL, timeout, nil)
}

// NewClientWithHTTP creates a Client with an optional custom HTTP client.
func NewClientWithHTTP(apiKey, model, baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		trimmedBaseURL = defaultBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		baseURL:    strings.TrimRight(trimmedBaseURL, "/"),
		httpClient: httpClient,
	}
}

// IsEnabled indicates whether the client has an API key.
func (c *Client) IsEnabled() bool {
	return c != nil && c.apiKey != ""
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []safetySetting   `json:"safetySettings"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate implements llm.Generator. System and prompt are sent as one user turn.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if !c.IsEnabled() {
		return "", fmt.Errorf("gemini client is not configured")
	}

	text := req.Prompt
	if req.System != "" {
		text = req.System + "\n\n" + req.Prompt
	}
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: text}}}},
	}
	if req.JSON {
		body.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}
	for _, cat := range safetyCategories {
		body.SafetySettings = append(body.SafetySettings, safetySetting{Category: cat, Threshold: "BLOCK_MEDIUM_AND_ABOVE"})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode gemini request: %w", err)
	}

	target := c.baseURL + "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, util.TruncateBytes(raw))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini prompt blocked (%s): %w", out.PromptFeedback.BlockReason, llm.ErrBlocked)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	cand := out.Candidates[0]
	if cand.FinishReason == "SAFETY" {
		return "", fmt.Errorf("gemini candidate finished with SAFETY: %w", llm.ErrBlocked)
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}
