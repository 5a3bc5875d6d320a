// Package sandbox executes stored report code against a caller's Xero connection.
//
// Report code is untrusted JavaScript that defines an async fetchReportData(context)
// function. Two executors exist: Runtime interprets the code in-process with a fresh
// goja runtime per run, ProcessRunner re-executes the binary so every run gets its
// own address space and an empty environment.
package sandbox

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout is the wall-clock budget of one execution.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxBodyBytes caps a single fetch response.
	DefaultMaxBodyBytes int64 = 10 << 20

	maxCallStackSize = 2048
)

// Executor runs report code and returns what fetchReportData produced.
type Executor interface {
	Execute(ctx context.Context, source string, sc Context) (*Result, error)
}

// Auth carries the bearer credential report code sends to Xero.
type Auth struct {
	Token string `json:"token"`
}

// UserInfo identifies the caller inside report code.
type UserInfo struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// Context is the argument passed to fetchReportData.
type Context struct {
	Auth     Auth     `json:"auth"`
	TenantID string   `json:"tenantId"`
	UserInfo UserInfo `json:"userInfo"`
}

// Result is the validated value resolved by fetchReportData.
type Result struct {
	Data     []any          `json:"data"`
	Metadata map[string]any `json:"metadata"`
}

// Error is a failure raised by report code or by the harness around it.
type Error struct {
	Message string
	Stack   string
	Timeout bool
}

func (e *Error) Error() string { return e.Message }

// Options bound an executor.
type Options struct {
	Timeout      time.Duration
	AllowedHosts []string
	MaxBodyBytes int64
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// New returns the executor for mode ("inprocess" or "process").
func New(mode string, opts Options) (Executor, error) {
	if mode == "process" {
		return NewProcessRunner(opts)
	}
	return NewRuntime(opts), nil
}
