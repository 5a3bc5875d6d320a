package sandbox

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dop251/goja"

	"github.com/pysugar/report-nexus/internal/metrics"
	"github.com/pysugar/report-nexus/internal/util"
)

// ErrHostNotAllowed is returned to report code fetching outside the allow list.
var ErrHostNotAllowed = errors.New("host not allowed")

// shouldSkipHeader reports hop-by-hop headers that report code may not set.
func shouldSkipHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Connection", "Proxy-Connection", "Keep-Alive", "Transfer-Encoding",
		"Te", "Trailer", "Upgrade", "Proxy-Authenticate", "Proxy-Authorization", "Host":
		return true
	}
	return false
}

// hostAllowed matches host against exact names and "*.suffix" wildcards. An empty list allows all.
func hostAllowed(host string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if a == host {
			return true
		}
		if suffix, ok := strings.CutPrefix(a, "*."); ok && strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// fetch is the global exposed to report code. It performs the request synchronously and
// returns an already settled promise.
func (r *run) fetch(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := r.vm.NewPromise()
	resp, err := r.doFetch(call)
	if err != nil {
		reject(r.vm.NewGoError(err))
	} else {
		resolve(resp)
	}
	return r.vm.ToValue(promise)
}

type fetchRequest struct {
	method  string
	url     string
	headers map[string]string
	body    string
}

func (r *run) parseRequest(call goja.FunctionCall) (*fetchRequest, error) {
	target := call.Argument(0)
	if !present(target) {
		return nil, errors.New("fetch: url is required")
	}
	req := &fetchRequest{method: http.MethodGet, url: target.String(), headers: map[string]string{}}

	init := call.Argument(1)
	if !present(init) {
		return req, nil
	}
	obj := init.ToObject(r.vm)
	if m := obj.Get("method"); present(m) {
		req.method = strings.ToUpper(m.String())
	}
	if b := obj.Get("body"); present(b) {
		req.body = b.String()
	}
	if h := obj.Get("headers"); present(h) {
		ho := h.ToObject(r.vm)
		for _, k := range ho.Keys() {
			if v := ho.Get(k); present(v) {
				req.headers[k] = v.String()
			}
		}
	}
	return req, nil
}

func (r *run) doFetch(call goja.FunctionCall) (goja.Value, error) {
	fr, err := r.parseRequest(call)
	if err != nil {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, err
	}

	u, err := url.Parse(fr.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch: invalid url %q", fr.url)
	}
	if !hostAllowed(u.Hostname(), r.opts.AllowedHosts) {
		metrics.SandboxFetches.WithLabelValues("blocked").Inc()
		r.log.Warn().Str("host", u.Hostname()).Msg("[Sandbox] Blocked fetch")
		return nil, fmt.Errorf("fetch %s: %w", u.Hostname(), ErrHostNotAllowed)
	}

	var body io.Reader
	if fr.body != "" {
		body = strings.NewReader(fr.body)
	}
	req, err := http.NewRequestWithContext(r.ctx, fr.method, u.String(), body)
	if err != nil {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch: %w", err)
	}
	for k, v := range fr.headers {
		if !shouldSkipHeader(k) {
			req.Header.Set(k, v)
		}
	}

	r.log.Info().Str("method", fr.method).Str("url", u.String()).Msg("[Sandbox] Making API call")

	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", u.String(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxBodyBytes+1))
	if err != nil {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch %s: read body: %w", u.String(), err)
	}
	if int64(len(raw)) > r.opts.MaxBodyBytes {
		metrics.SandboxFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fetch %s: response body exceeds %d bytes", u.String(), r.opts.MaxBodyBytes)
	}

	ev := r.log.Info()
	if resp.StatusCode >= 400 {
		ev = r.log.Warn()
	}
	ev.Int("status", resp.StatusCode).
		Str("body", util.TruncateLog(string(raw), util.BodyPreviewLen)).
		Msg("[Sandbox] API response")
	metrics.SandboxFetches.WithLabelValues("ok").Inc()

	return r.response(resp, raw), nil
}

// response builds the Response-like object handed back to report code.
func (r *run) response(resp *http.Response, raw []byte) goja.Value {
	vm := r.vm
	obj := vm.NewObject()
	_ = obj.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = obj.Set("status", resp.StatusCode)
	_ = obj.Set("statusText", http.StatusText(resp.StatusCode))
	_ = obj.Set("url", resp.Request.URL.String())

	header := resp.Header.Clone()
	headers := vm.NewObject()
	_ = headers.Set("get", func(call goja.FunctionCall) goja.Value {
		vals := header.Values(call.Argument(0).String())
		if len(vals) == 0 {
			return goja.Null()
		}
		return vm.ToValue(strings.Join(vals, ", "))
	})
	_ = headers.Set("has", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(len(header.Values(call.Argument(0).String())) > 0)
	})
	_ = obj.Set("headers", headers)

	text := string(raw)
	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		p, resolve, _ := vm.NewPromise()
		resolve(text)
		return vm.ToValue(p)
	})
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		p, resolve, reject := vm.NewPromise()
		parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
		v, err := parse(goja.Undefined(), vm.ToValue(text))
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				reject(ex.Value())
			} else {
				reject(vm.NewGoError(err))
			}
		} else {
			resolve(v)
		}
		return vm.ToValue(p)
	})
	return obj
}
