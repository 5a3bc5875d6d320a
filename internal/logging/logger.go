// Package logging configures the process logger and carries per-request log context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the structured logger used across the service.
type Logger = zerolog.Logger

// New builds the process logger. Development gets a console writer, everything else JSON.
func New(env, level string) Logger {
	return newWithWriter(env, level, os.Stderr)
}

func newWithWriter(env, level string, out io.Writer) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "development" || env == "local" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// FromContext returns the request-scoped logger, or the global one outside a request.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	return &log.Logger
}

// WithLogger stores l in ctx.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return l.WithContext(ctx)
}
