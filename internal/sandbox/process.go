package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/metrics"
	"github.com/pysugar/report-nexus/internal/util"
)

// killGrace is how long a child may overrun its budget before it is killed.
const killGrace = 2 * time.Second

type processRequest struct {
	Source       string   `json:"source"`
	Context      Context  `json:"context"`
	TimeoutMs    int64    `json:"timeoutMs"`
	AllowedHosts []string `json:"allowedHosts"`
	MaxBodyBytes int64    `json:"maxBodyBytes"`
}

type processResponse struct {
	Data     []any          `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
	Stack    string         `json:"stack,omitempty"`
	Timeout  bool           `json:"timeout,omitempty"`
}

// ProcessRunner executes report code in a child process started from Path with Args.
type ProcessRunner struct {
	Path string
	Args []string
	opts Options
}

// NewProcessRunner returns a runner that re-executes the current binary as "nexus sandbox".
func NewProcessRunner(opts Options) (*ProcessRunner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ProcessRunner{Path: exe, Args: []string{"sandbox"}, opts: opts.withDefaults()}, nil
}

// Execute implements Executor.
func (p *ProcessRunner) Execute(ctx context.Context, source string, sc Context) (*Result, error) {
	start := time.Now()
	res, err := p.execute(ctx, source, sc)
	metrics.SandboxDuration.WithLabelValues("process", outcome(err)).Observe(time.Since(start).Seconds())
	return res, err
}

func (p *ProcessRunner) execute(ctx context.Context, source string, sc Context) (*Result, error) {
	in, err := json.Marshal(processRequest{
		Source:       source,
		Context:      sc,
		TimeoutMs:    p.opts.Timeout.Milliseconds(),
		AllowedHosts: p.opts.AllowedHosts,
		MaxBodyBytes: p.opts.MaxBodyBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sandbox request: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout+killGrace)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, p.Path, p.Args...)
	cmd.Env = []string{}
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if stderr.Len() > 0 {
		logging.FromContext(ctx).Debug().Str("stderr", util.TruncateBytes(stderr.Bytes())).Msg("sandbox child output")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() != nil {
		return nil, &Error{Message: fmt.Sprintf("execution timed out after %s", p.opts.Timeout), Timeout: true}
	}
	if runErr != nil {
		return nil, fmt.Errorf("sandbox process: %w: %s", runErr, util.TruncateLog(stderr.String(), util.BodyPreviewLen))
	}

	var out processResponse
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decode sandbox response: %w", err)
	}
	return out.result()
}

func (r processResponse) result() (*Result, error) {
	if r.Error != "" {
		return nil, &Error{Message: r.Error, Stack: r.Stack, Timeout: r.Timeout}
	}
	res := &Result{Data: r.Data, Metadata: r.Metadata}
	if res.Data == nil {
		res.Data = []any{}
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	return res, nil
}

// ServeStdio is the child side of ProcessRunner: one request in, one response out.
func ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	var req processRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("decode sandbox request: %w", err)
	}

	rt := NewRuntime(Options{
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
		AllowedHosts: req.AllowedHosts,
		MaxBodyBytes: req.MaxBodyBytes,
	})
	res, err := rt.Execute(ctx, req.Source, req.Context)

	var out processResponse
	var se *Error
	switch {
	case err == nil:
		out.Data, out.Metadata = res.Data, res.Metadata
	case errors.As(err, &se):
		out.Error, out.Stack, out.Timeout = se.Message, se.Stack, se.Timeout
	default:
		return err
	}
	return json.NewEncoder(w).Encode(out)
}
