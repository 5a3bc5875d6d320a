package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/pysugar/report-nexus/internal/logging"
	"github.com/pysugar/report-nexus/internal/metrics"
)

// harness wraps the report source. It never rejects: every failure becomes {error, stack}.
const harness = `
;(async function (__ctx) {
  try {
    if (typeof fetchReportData !== 'function') {
      throw new Error('Invalid report code: fetchReportData function not found');
    }
    const result = await fetchReportData(__ctx);
    if (!result || typeof result !== 'object') {
      throw new Error('Invalid report result: must return an object');
    }
    if (!Array.isArray(result.data)) {
      throw new Error('Invalid report result: data must be an array');
    }
    const meta = result.metadata && typeof result.metadata === 'object' && !Array.isArray(result.metadata)
      ? result.metadata
      : {};
    return { data: JSON.stringify(result.data), metadata: JSON.stringify(meta) };
  } catch (err) {
    return {
      error: (err && err.message) || 'Unknown error during execution',
      stack: (err && err.stack) || String(err)
    };
  }
})(context)
`

const errNotCompleted = "report did not complete"

// Runtime executes report code in-process.
type Runtime struct {
	opts Options
}

// NewRuntime returns an in-process executor.
func NewRuntime(opts Options) *Runtime {
	return &Runtime{opts: opts.withDefaults()}
}

// Execute implements Executor.
func (rt *Runtime) Execute(ctx context.Context, source string, sc Context) (*Result, error) {
	start := time.Now()
	res, err := rt.execute(ctx, source, sc)
	metrics.SandboxDuration.WithLabelValues("inprocess", outcome(err)).Observe(time.Since(start).Seconds())
	return res, err
}

func (rt *Runtime) execute(ctx context.Context, source string, sc Context) (*Result, error) {
	logger := rt.opts.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	execCtx, cancel := context.WithTimeout(ctx, rt.opts.Timeout)
	defer cancel()

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)

	r := &run{vm: vm, ctx: execCtx, opts: rt.opts, log: logger}
	if err := r.install(sc); err != nil {
		return nil, fmt.Errorf("install sandbox globals: %w", err)
	}

	stop := context.AfterFunc(execCtx, func() { vm.Interrupt(execCtx.Err()) })
	defer stop()

	v, err := vm.RunString(source + "\n" + harness)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if execCtx.Err() != nil {
		return nil, rt.timeoutError()
	}
	if err != nil {
		return nil, scriptError(err)
	}

	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return nil, &Error{Message: errNotCompleted}
	}
	switch p.State() {
	case goja.PromiseStatePending:
		return nil, &Error{Message: errNotCompleted}
	case goja.PromiseStateRejected:
		return nil, &Error{Message: p.Result().String()}
	}
	return r.decode(p.Result())
}

func (rt *Runtime) timeoutError() *Error {
	return &Error{
		Message: fmt.Sprintf("execution timed out after %s", rt.opts.Timeout),
		Timeout: true,
	}
}

// run is the state of one execution.
type run struct {
	vm   *goja.Runtime
	ctx  context.Context
	opts Options
	log  *zerolog.Logger
}

func (r *run) install(sc Context) error {
	if err := r.vm.Set("fetch", r.fetch); err != nil {
		return err
	}
	if err := r.vm.Set("console", r.console()); err != nil {
		return err
	}
	return r.vm.Set("context", r.contextObject(sc))
}

func (r *run) contextObject(sc Context) *goja.Object {
	auth := r.vm.NewObject()
	_ = auth.Set("token", sc.Auth.Token)

	user := r.vm.NewObject()
	_ = user.Set("id", sc.UserInfo.ID)
	_ = user.Set("email", sc.UserInfo.Email)

	obj := r.vm.NewObject()
	_ = obj.Set("auth", auth)
	_ = obj.Set("tenantId", sc.TenantID)
	_ = obj.Set("userInfo", user)
	return obj
}

func (r *run) decode(v goja.Value) (*Result, error) {
	obj := v.ToObject(r.vm)
	if msg := obj.Get("error"); present(msg) && msg.ToBoolean() {
		stack := ""
		if s := obj.Get("stack"); present(s) {
			stack = s.String()
		}
		return nil, &Error{Message: msg.String(), Stack: stack}
	}

	res := &Result{Data: []any{}, Metadata: map[string]any{}}
	if err := json.Unmarshal([]byte(obj.Get("data").String()), &res.Data); err != nil {
		return nil, &Error{Message: "Invalid report result: data is not serializable"}
	}
	if err := json.Unmarshal([]byte(obj.Get("metadata").String()), &res.Metadata); err != nil {
		return nil, &Error{Message: "Invalid report result: metadata is not serializable"}
	}
	if res.Data == nil {
		res.Data = []any{}
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	return res, nil
}

// stringify renders v the way JSON.stringify does, falling back to String().
func (r *run) stringify(v goja.Value) string {
	fn, ok := goja.AssertFunction(r.vm.Get("JSON").ToObject(r.vm).Get("stringify"))
	if !ok {
		return v.String()
	}
	out, err := fn(goja.Undefined(), v)
	if err != nil || !present(out) {
		return v.String()
	}
	return out.String()
}

func scriptError(err error) *Error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		e := &Error{Message: ex.Error(), Stack: ex.String()}
		if obj, ok := ex.Value().(*goja.Object); ok {
			if m := obj.Get("message"); present(m) {
				e.Message = m.String()
			}
		}
		return e
	}
	return &Error{Message: err.Error()}
}

func present(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var se *Error
	if errors.As(err, &se) && se.Timeout {
		return "timeout"
	}
	return "error"
}
