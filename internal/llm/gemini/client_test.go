package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pysugar/report-nexus/internal/llm"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestGenerate_SendsKeyJSONModeAndSafety(t *testing.T) {
	var gotPath, gotKey string
	var gotBody generateRequest

	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Goog-Api-Key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		return respond(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"{\"name\":"},{"text":"\"x\"}"}]},"finishReason":"STOP"}]}`), nil
	})}

	c := NewClientWithHTTP("server-key", "gemini-2.5-flash", "", time.Minute, client)
	out, err := c.Generate(context.Background(), llm.Request{System: "rules", Prompt: "User Query: revenue", JSON: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != `{"name":"x"}` {
		t.Fatalf("output = %q", out)
	}
	if gotPath != "/v1beta/models/gemini-2.5-flash:generateContent" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotKey != "server-key" {
		t.Fatalf("api key header = %q", gotKey)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("expected JSON response mime type: %+v", gotBody.GenerationConfig)
	}
	if len(gotBody.SafetySettings) != 4 {
		t.Fatalf("safety settings = %+v", gotBody.SafetySettings)
	}
	text := gotBody.Contents[0].Parts[0].Text
	if !strings.HasPrefix(text, "rules") || !strings.HasSuffix(text, "User Query: revenue") {
		t.Fatalf("prompt text = %q", text)
	}
}

func TestGenerate_PlainTextOmitsGenerationConfig(t *testing.T) {
	var gotBody map[string]any
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		return respond(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"It sums invoices."}]}}]}`), nil
	})}

	c := NewClientWithHTTP("k", "", "", 0, client)
	out, err := c.Generate(context.Background(), llm.Request{Prompt: "how?"})
	if err != nil || out != "It sums invoices." {
		t.Fatalf("Generate() = %q, %v", out, err)
	}
	if _, ok := gotBody["generationConfig"]; ok {
		t.Fatalf("generationConfig should be omitted: %v", gotBody)
	}
}

func TestGenerate_SafetyBlocks(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"prompt feedback", `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"finish reason", `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
				return respond(http.StatusOK, tt.body), nil
			})}
			_, err := NewClientWithHTTP("k", "", "", 0, client).Generate(context.Background(), llm.Request{Prompt: "x"})
			if !errors.Is(err, llm.ErrBlocked) {
				t.Fatalf("expected ErrBlocked, got %v", err)
			}
		})
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusTooManyRequests, `{"error":{"message":"quota"}}`), nil
	})}
	_, err := NewClientWithHTTP("k", "", "", 0, client).Generate(context.Background(), llm.Request{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
	if llm.IsBlocked(err) {
		t.Fatalf("quota errors are not safety blocks")
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	if _, err := NewClient("", "", "", 0).Generate(context.Background(), llm.Request{Prompt: "x"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
