package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pysugar/report-nexus/internal/metrics"
)

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrBlocked, true},
		{"wrapped", fmt.Errorf("gemini: %w", ErrBlocked), true},
		{"marker in text", errors.New("candidate finished with reason SAFETY"), true},
		{"other", errors.New("quota exceeded"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlocked(tt.err); got != tt.want {
				t.Fatalf("IsBlocked(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestInstrument_CountsOutcomes(t *testing.T) {
	blocked := metrics.LLMRequests.WithLabelValues("instrument-test", "blocked")
	ok := metrics.LLMRequests.WithLabelValues("instrument-test", "ok")
	beforeBlocked, beforeOK := testutil.ToFloat64(blocked), testutil.ToFloat64(ok)

	calls := 0
	g := Instrument(Func(func(ctx context.Context, req Request) (string, error) {
		calls++
		if req.Prompt == "bad" {
			return "", ErrBlocked
		}
		return "fine", nil
	}))

	if out, err := g.Generate(context.Background(), Request{Operation: "instrument-test", Prompt: "good"}); err != nil || out != "fine" {
		t.Fatalf("Generate() = %q, %v", out, err)
	}
	if _, err := g.Generate(context.Background(), Request{Operation: "instrument-test", Prompt: "bad"}); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	if got := testutil.ToFloat64(ok) - beforeOK; got != 1 {
		t.Fatalf("ok delta = %v", got)
	}
	if got := testutil.ToFloat64(blocked) - beforeBlocked; got != 1 {
		t.Fatalf("blocked delta = %v", got)
	}
}
