// Package llm is the model-facing side of report authoring.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/pysugar/report-nexus/internal/metrics"
)

// ErrBlocked marks a response the model refused on safety grounds.
var ErrBlocked = errors.New("response blocked: SAFETY")

// Request is one prompt. System carries the fixed instructions, Prompt the task content.
type Request struct {
	Operation string
	System    string
	Prompt    string
	// JSON asks the model for a bare JSON object.
	JSON bool
}

// Generator returns the model's text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// IsBlocked reports whether err is a safety refusal. Upstream errors that only carry
// the SAFETY marker in their text count too.
func IsBlocked(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBlocked) || strings.Contains(err.Error(), "SAFETY")
}

// Instrument counts and times every call made through g.
func Instrument(g Generator) Generator {
	return Func(func(ctx context.Context, req Request) (string, error) {
		op := req.Operation
		if op == "" {
			op = "unknown"
		}
		start := time.Now()
		out, err := g.Generate(ctx, req)
		metrics.LLMDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

		outcome := "ok"
		switch {
		case IsBlocked(err):
			outcome = "blocked"
		case err != nil:
			outcome = "error"
		}
		metrics.LLMRequests.WithLabelValues(op, outcome).Inc()
		return out, err
	})
}
