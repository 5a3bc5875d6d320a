package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/report-nexus/internal/apierr"
	"github.com/pysugar/report-nexus/internal/auth/session"
)

func TestOptionalID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    OptionalID
		wantErr bool
	}{
		{`{"userId":7}`, OptionalID{Set: true, Value: 7}, false},
		{`{"userId":"7"}`, OptionalID{Set: true, Value: 7}, false},
		{`{"userId":null}`, OptionalID{}, false},
		{`{}`, OptionalID{}, false},
		{`{"userId":"abc"}`, OptionalID{}, true},
		{`{"userId":-1}`, OptionalID{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var body struct {
				UserID OptionalID `json:"userId"`
			}
			err := json.Unmarshal([]byte(tt.in), &body)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && body.UserID != tt.want {
				t.Fatalf("got %+v, want %+v", body.UserID, tt.want)
			}
		})
	}
}

func TestDecodeBody_ValidationMessages(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		dst     any
		message string
	}{
		{"empty body", "", &createReportRequest{}, "Query is required"},
		{"blank request text", `{"requestText":""}`, &modifyReportRequest{}, "Modification request text is required"},
		{"missing question", `{"userId":1}`, &askReportRequest{}, "Question text is required"},
		{"bad email", `{"email":"nope","password":"secret1"}`, &registerRequest{}, "Email must be a valid email address"},
		{"short password", `{"email":"a@b.co","password":"123"}`, &registerRequest{}, "Password must be at least 6 characters"},
		{"not json", `{"query":`, &createReportRequest{}, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := decodeBody(req, tt.dst)
			if !apierr.Is(err, apierr.Validation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if _, body := apierr.ToBody(err); body.Message != tt.message {
				t.Fatalf("message = %q, want %q", body.Message, tt.message)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"12", true},
		{"0", false},
		{"-3", false},
		{"abc", false},
		{"1.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.raw)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			id, err := pathID(req, "id", invalidReportID)
			if tt.ok && (err != nil || id != 12) {
				t.Fatalf("pathID = %d, %v", id, err)
			}
			if !tt.ok {
				if _, body := apierr.ToBody(err); body.Message != invalidReportID {
					t.Fatalf("err = %v", err)
				}
			}
		})
	}
}

func TestActingUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := actingUser(req, OptionalID{}); !apierr.Is(err, apierr.Unauthorized) {
		t.Fatalf("no caller: err = %v", err)
	}

	req = req.WithContext(session.WithCaller(req.Context(), &session.Caller{ID: 3}))
	if c, err := actingUser(req, OptionalID{}); err != nil || c.ID != 3 {
		t.Fatalf("implicit user: %v, %v", c, err)
	}
	if c, err := actingUser(req, OptionalID{Set: true, Value: 3}); err != nil || c.ID != 3 {
		t.Fatalf("matching user: %v, %v", c, err)
	}
	if _, err := actingUser(req, OptionalID{Set: true, Value: 4}); !apierr.Is(err, apierr.Forbidden) {
		t.Fatalf("mismatched user: err = %v", err)
	}
}

func TestWriteError_HidesUnclassifiedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("sql: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
	var body apierr.Body
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Message != "Internal server error" || body.Code != apierr.Internal {
		t.Fatalf("body = %+v", body)
	}
}
