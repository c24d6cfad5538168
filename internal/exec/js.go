package exec

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
)

// GojaRuntime runs `js { ... }` bodies in-process via a pure-Go JS VM,
// with the standard library intentionally not exposed (spec §4.7: "an
// in-process sandbox with a restricted standard library" — no fs, no
// net, no process).
type GojaRuntime struct {
	// Console, when non-nil, receives console.log/console.error calls;
	// nil leaves them silently discarded.
	Console func(args ...interface{})
}

// Run evaluates script with locals bound as globals, returning the
// value of the last expression coerced to a string. The VM is
// constructed fresh per call: goja.Runtime is not safe for concurrent
// reuse across pipeline stages running in parallel.
func (g *GojaRuntime) Run(ctx context.Context, script string, locals map[string]interface{}) (string, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	for name, val := range locals {
		if err := vm.Set(name, val); err != nil {
			return "", fmt.Errorf("exec/js: binding %q: %w", name, err)
		}
	}
	if err := vm.Set("console", map[string]interface{}{
		"log":   g.log,
		"error": g.log,
		"warn":  g.log,
	}); err != nil {
		return "", err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()
	defer close(done)

	v, err := vm.RunString(script)
	if err != nil {
		return "", fmt.Errorf("exec/js: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

func (g *GojaRuntime) log(args ...interface{}) {
	if g.Console != nil {
		g.Console(args...)
	}
}
