package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddleware_AssignsRequestIDAndLogs(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter("production", "info", &buf)

	var seen string
	h := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		FromContext(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ai/reports/1", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 hex chars", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header = %q, want %q", got, seen)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %v", err)
		}
		if entry["request_id"] != seen {
			t.Fatalf("log line missing request id: %s", line)
		}
	}
	if !strings.Contains(lines[1], `"status":418`) {
		t.Fatalf("access log missing status: %s", lines[1])
	}
}

func TestMiddleware_KeepsIncomingRequestID(t *testing.T) {
	base := newWithWriter("production", "error", &bytes.Buffer{})
	h := Middleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc123" {
		t.Fatalf("response header = %q, want abc123", got)
	}
}
