package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pysugar/report-nexus/internal/llm"
)

func completionServer(t *testing.T, finishReason, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(raw, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": finishReason,
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_JSONMode(t *testing.T) {
	var got map[string]any
	srv := completionServer(t, "stop", `{"name":"Revenue"}`, &got)

	c := NewClient("sk-test", "", srv.URL+"/v1", 0)
	out, err := c.Generate(context.Background(), llm.Request{System: "rules", Prompt: "revenue", JSON: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != `{"name":"Revenue"}` {
		t.Fatalf("output = %q", out)
	}
	if got["model"] != "gpt-4o" {
		t.Fatalf("model = %v", got["model"])
	}
	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Fatalf("response_format = %v", got["response_format"])
	}
	if msgs, _ := got["messages"].([]any); len(msgs) != 2 {
		t.Fatalf("messages = %v", got["messages"])
	}
}

func TestGenerate_ContentFilter(t *testing.T) {
	srv := completionServer(t, "content_filter", "", nil)
	_, err := NewClient("sk-test", "gpt-4o", srv.URL+"/v1", 0).Generate(context.Background(), llm.Request{Prompt: "x"})
	if !errors.Is(err, llm.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}
