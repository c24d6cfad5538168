package interp

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/env"
)

// errNotBuiltin signals builtinRef that the identifier is not one of the
// reserved runtime globals and should fall through to a normal scope
// lookup.
var errNotBuiltin = errors.New("interp: not a builtin")

// builtinRef resolves the always-available identifiers @base, @root, @ctx
// and @mx (spec §4.2 edge-case policy). Other reserved names such as @now
// and @input are not resolved here and fall through to Environment.Get.
// @ctx is a view over the current pipeline frame and @mx over the current
// loop frame rather than real variables (spec §9 design note); guard
// frames are not exposed through @mx.
func builtinRef(node *ast.VariableReference, e *env.Environment) (value.StructuredValue, error) {
	switch node.Identifier {
	case "base", "root":
		return value.Text(e.Shared().ProjectDir, value.NewDescriptor(value.TaintTrusted)), nil
	case "ctx":
		frame, ok := e.CurrentPipelineFrame()
		if !ok {
			return value.Null(value.NewDescriptor()), nil
		}
		return pipelineFrameValue(frame), nil
	case "mx":
		if loop, ok := e.CurrentLoopFrame(); ok {
			return loopFrameValue(loop), nil
		}
		return value.Null(value.NewDescriptor()), nil
	default:
		return value.StructuredValue{}, errNotBuiltin
	}
}

func pipelineFrameValue(f env.PipelineFrame) value.StructuredValue {
	data := map[string]interface{}{
		"try":   float64(f.Try),
		"stage": float64(f.Stage),
		"total": float64(f.Total),
	}
	if f.Hint != nil {
		data["hint"] = *f.Hint
	} else {
		data["hint"] = nil
	}
	outs := make([]interface{}, len(f.Outputs))
	for i, o := range f.Outputs {
		outs[i] = o.Data
	}
	data["outputs"] = outs
	if prev, ok := f.Previous(); ok {
		data["previous"] = prev.Data
	} else {
		data["previous"] = nil
	}
	return value.JSONValue(data, value.NewDescriptor(value.TaintTrusted))
}

func loopFrameValue(f env.LoopFrame) value.StructuredValue {
	data := map[string]interface{}{
		"index":     float64(f.Index),
		"iteration": float64(f.Iteration),
		"total":     float64(f.Total),
	}
	if f.Key != nil {
		data["key"] = *f.Key
	} else {
		data["key"] = nil
	}
	return value.JSONValue(map[string]interface{}{"loop": data}, value.NewDescriptor(value.TaintTrusted))
}

// loadedContentMx builds the `.mx` metadata an alligator-loaded file
// carries (spec §4.3: "filename, relative, absolute, dirname, tokens,
// source").
func loadedContentMx(path string) map[string]interface{} {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return map[string]interface{}{
		"filename": filepath.Base(path),
		"relative": path,
		"absolute": abs,
		"dirname":  filepath.Dir(path),
		"tokens":   float64(len(strings.Fields(path))),
		"source":   path,
	}
}

func wrapMxField(v interface{}, sec value.SecurityDescriptor) value.StructuredValue {
	switch d := v.(type) {
	case string:
		return value.Text(d, sec)
	default:
		return value.JSONValue(d, sec)
	}
}
