package interp

import (
	"context"
	"fmt"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/tmpl"
)

// evalExpr evaluates any Expression node to a StructuredValue (spec §4.2's
// `evaluate(node, env) -> Result<StructuredValue>`, restricted to the
// value-producing node kinds).
func (ip *Interpreter) evalExpr(ctx context.Context, n ast.Expression, e *env.Environment) (value.StructuredValue, error) {
	switch node := n.(type) {
	case *ast.StringLiteral:
		return value.Text(node.Value, value.NewDescriptor(value.TaintTrusted)), nil
	case *ast.NumberLiteral:
		return value.JSONValue(node.Value, value.NewDescriptor(value.TaintTrusted)), nil
	case *ast.BooleanLiteral:
		return value.Bool(node.Value, value.NewDescriptor(value.TaintTrusted)), nil
	case *ast.NullLiteral:
		return value.Null(value.NewDescriptor(value.TaintTrusted)), nil
	case *ast.DurationLiteral:
		return value.Text(node.Value, value.NewDescriptor(value.TaintTrusted)), nil
	case *ast.ArrayLiteral:
		return ip.evalArray(ctx, node, e)
	case *ast.ObjectLiteral:
		return ip.evalObject(ctx, node, e)
	case *ast.VariableReference:
		return ip.resolveRef(node, e)
	case *ast.TemplateLiteral:
		return ip.evalTemplate(ctx, node, tmpl.Default, e)
	case *ast.AlligatorPath:
		return ip.evalAlligatorPath(ctx, node, e)
	case *ast.ExecInvocation:
		return ip.evalExecInvocation(ctx, node, e, false)
	case *ast.PipelineExpression:
		return ip.evalPipelineExpression(ctx, node, e)
	case *ast.WhenExpression:
		return ip.evalWhenValue(ctx, node, e)
	case *ast.ForExpression:
		return ip.evalForExpression(ctx, node, e)
	default:
		return value.StructuredValue{}, &diagnostic.TypeMismatch{Expected: "expression", Got: fmt.Sprintf("%T", n), Loc: n.Position()}
	}
}

func (ip *Interpreter) evalArray(ctx context.Context, node *ast.ArrayLiteral, e *env.Environment) (value.StructuredValue, error) {
	data := make([]interface{}, 0, len(node.Elements))
	descs := make([]value.SecurityDescriptor, 0, len(node.Elements))
	for _, el := range node.Elements {
		v, err := ip.evalExpr(ctx, el, e)
		if err != nil {
			return value.StructuredValue{}, err
		}
		data = append(data, v.Data)
		descs = append(descs, v.Metadata.Security)
	}
	return value.JSONValue(data, value.MergeDescriptors(descs...)), nil
}

func (ip *Interpreter) evalObject(ctx context.Context, node *ast.ObjectLiteral, e *env.Environment) (value.StructuredValue, error) {
	data := make(map[string]interface{}, len(node.Entries))
	descs := make([]value.SecurityDescriptor, 0, len(node.Entries))
	for _, entry := range node.Entries {
		v, err := ip.evalExpr(ctx, entry.Value, e)
		if err != nil {
			return value.StructuredValue{}, err
		}
		data[entry.Key] = v.Data
		descs = append(descs, v.Metadata.Security)
	}
	return value.JSONValue(data, value.MergeDescriptors(descs...)), nil
}

// resolveRef looks up a VariableReference's binding and walks its Fields.
func (ip *Interpreter) resolveRef(node *ast.VariableReference, e *env.Environment) (value.StructuredValue, error) {
	v, err := builtinRef(node, e)
	if err == errNotBuiltin {
		vv, getErr := e.Get(node.Identifier)
		if getErr != nil {
			if vn, ok := getErr.(*diagnostic.VariableNotFound); ok {
				vn.Loc = node.Pos
				vn.Suggestion = diagnostic.Suggest(node.Identifier, e.KnownNames())
			}
			return value.StructuredValue{}, getErr
		}
		v = vv.Value
	} else if err != nil {
		return value.StructuredValue{}, err
	}

	cur := v
	for _, f := range node.Fields {
		var ok bool
		if f.IsIdx {
			cur, ok = cur.Index(f.Index)
		} else {
			cur, ok = cur.Field(f.Name)
		}
		if !ok {
			return value.Null(cur.Metadata.Security), nil
		}
	}
	return cur, nil
}

// asResolver adapts resolveRef to tmpl.Resolver, keeping internal/tmpl
// decoupled from internal/interp (the import-cycle-avoidance discipline
// documented on tmpl.Resolver itself).
func (ip *Interpreter) asResolver(e *env.Environment) tmpl.Resolver {
	return func(ref *ast.VariableReference) (value.StructuredValue, error) {
		return ip.resolveRef(ref, e)
	}
}

func (ip *Interpreter) evalTemplate(ctx context.Context, node *ast.TemplateLiteral, tctx tmpl.Context, e *env.Environment) (value.StructuredValue, error) {
	return tmpl.Render(node, tctx, ip.asResolver(e), value.NewDescriptor(value.TaintTrusted))
}

// evalAlligatorPath loads a file (or, when Path renders to a glob, a set of
// files) through the Environment's FileSystem port and wraps it as
// loaded_content (spec §4.3's alligator syntax).
func (ip *Interpreter) evalAlligatorPath(ctx context.Context, node *ast.AlligatorPath, e *env.Environment) (value.StructuredValue, error) {
	pathVal, err := ip.evalExpr(ctx, node.Path, e)
	if err != nil {
		return value.StructuredValue{}, err
	}
	fs := e.Shared().FS
	if fs == nil {
		return value.StructuredValue{}, fmt.Errorf("interp: no filesystem configured for alligator load %q", pathVal.Text)
	}
	if !fs.Exists(pathVal.Text) {
		return value.StructuredValue{}, &diagnostic.PathValidationError{Code: diagnostic.PathFileNotFound, Path: pathVal.Text, Loc: node.Pos}
	}
	data, err := fs.ReadFile(pathVal.Text)
	if err != nil {
		return value.StructuredValue{}, err
	}
	sec := pathVal.Metadata.Security.Clone()
	sec.Taint[value.TaintSrcFS] = true
	sec = sec.WithSource(pathVal.Text)

	out := value.StructuredValue{
		Data: string(data),
		Text: string(data),
		Kind: value.KindLoadedContent,
		Metadata: value.Metadata{
			Security: sec,
			Source:   pathVal.Text,
			Mx:       loadedContentMx(pathVal.Text),
		},
	}
	for _, field := range node.Fields {
		if v, ok := out.Metadata.Mx[field]; ok {
			return wrapMxField(v, sec), nil
		}
	}
	return out, nil
}
