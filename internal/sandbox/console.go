package sandbox

import (
	"strings"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// console forwards report logging to the host logger under a fixed prefix.
func (r *run) console() *goja.Object {
	obj := r.vm.NewObject()
	_ = obj.Set("log", r.consoleAt(zerolog.InfoLevel))
	_ = obj.Set("info", r.consoleAt(zerolog.InfoLevel))
	_ = obj.Set("warn", r.consoleAt(zerolog.WarnLevel))
	_ = obj.Set("error", r.consoleAt(zerolog.ErrorLevel))
	_ = obj.Set("debug", r.consoleAt(zerolog.DebugLevel))
	return obj
}

func (r *run) consoleAt(level zerolog.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			if _, isObj := a.(*goja.Object); isObj {
				parts = append(parts, r.stringify(a))
				continue
			}
			parts = append(parts, a.String())
		}
		r.log.WithLevel(level).Msg("[Sandbox] " + strings.Join(parts, " "))
		return goja.Undefined()
	}
}
