package interp

import (
	"context"
	"fmt"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/exec"
	"github.com/mlld-lang/mlld/internal/guard"
	"github.com/mlld-lang/mlld/internal/pipeline"
	"github.com/mlld-lang/mlld/internal/tmpl"
)

// evalExecInvocation calls an `/exe`-defined callable: binds parameters,
// dispatches on the body kind, applies before/after op:exe guards and the
// policy stack, and finally runs any trailing pipeline (spec §4.2's
// ExecInvocation contract).
func (ip *Interpreter) evalExecInvocation(ctx context.Context, node *ast.ExecInvocation, e *env.Environment, insidePipelineStage bool) (value.StructuredValue, error) {
	if node.Tail != nil {
		return ip.runPipeline(ctx, func(frame env.PipelineFrame) pipeline.Result {
			var v value.StructuredValue
			rerr := e.WithPipelineContext(frame, func(child *env.Environment) error {
				out, err := ip.evalExecInvocationCore(ctx, node, child, true, nil)
				v = out
				return err
			})
			return resultFromErr(v, rerr)
		}, node.Tail.Stages, e)
	}
	return ip.evalExecInvocationCore(ctx, node, e, insidePipelineStage, nil)
}

// evalExecInvocationCore runs one call (param binding, before/after op:exe
// guards, body dispatch) without applying a trailing pipeline.
// implicitInput, when non-nil, is what an unbound leading parameter
// receives (spec §4.3: a pipeline stage's raw non-JSON input maps to the
// callable's first parameter).
func (ip *Interpreter) evalExecInvocationCore(ctx context.Context, node *ast.ExecInvocation, e *env.Environment, insidePipelineStage bool, implicitInput *value.StructuredValue) (value.StructuredValue, error) {
	ref, ok := node.Target.(*ast.VariableReference)
	if !ok {
		return value.StructuredValue{}, fmt.Errorf("interp: exec invocation target must be a variable reference")
	}
	variable, err := e.Get(ref.Identifier)
	if err != nil {
		return value.StructuredValue{}, err
	}
	callable, ok := variable.Metadata["callable"].(value.Callable)
	if !ok {
		return value.StructuredValue{}, fmt.Errorf("interp: @%s is not callable", ref.Identifier)
	}

	target := guard.Target{Op: "exe", Name: callable.Name}
	if err := ip.checkPhase(ctx, ast.GuardBefore, target, e, insidePipelineStage); err != nil {
		return value.StructuredValue{}, err
	}

	child := e.CreateChild(env.ChildExecCall)
	if err := ip.bindParams(ctx, callable, node.Args, implicitInput, e, child); err != nil {
		return value.StructuredValue{}, err
	}

	out, err := ip.runCallableBody(ctx, callable, child, insidePipelineStage)
	if err != nil {
		return value.StructuredValue{}, err
	}

	if err := ip.checkPhase(ctx, ast.GuardAfter, target, e, insidePipelineStage); err != nil {
		return value.StructuredValue{}, err
	}
	return out, nil
}

// bindParams binds callable.Params to positional/named arguments. When
// implicitInput is non-nil and the first parameter is bound by no explicit
// argument, that first parameter takes implicitInput (spec
// §4.3: "Multi-parameter exe invoked via pipeline with a non-JSON input
// maps the raw text to the first parameter").
func (ip *Interpreter) bindParams(ctx context.Context, callable value.Callable, args []ast.NamedArgument, implicitInput *value.StructuredValue, caller, dest *env.Environment) error {
	named := map[string]ast.Expression{}
	var positional []ast.Expression
	for _, a := range args {
		if a.Name != "" {
			named[a.Name] = a.Value
		} else {
			positional = append(positional, a.Value)
		}
	}

	posIdx := 0
	for i, p := range callable.Params {
		var v value.StructuredValue
		var err error
		if expr, ok := named[p]; ok {
			v, err = ip.evalExpr(ctx, expr, caller)
		} else if posIdx < len(positional) {
			v, err = ip.evalExpr(ctx, positional[posIdx], caller)
			posIdx++
		} else if implicitInput != nil && i == 0 {
			v = *implicitInput
		} else {
			continue // unbound optional parameter
		}
		if err != nil {
			return err
		}
		if err := dest.Set(value.NewVariable(p, v, value.SourceLet, value.ScopeParameter)); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Interpreter) runCallableBody(ctx context.Context, callable value.Callable, child *env.Environment, insidePipelineStage bool) (value.StructuredValue, error) {
	def := callable.Def
	switch def.Kind {
	case ast.BodyTemplate:
		return ip.evalTemplate(ctx, def.Code, tmpl.Template, child)
	case ast.BodyWhen:
		return ip.evalWhenValue(ctx, def.When, child)
	case ast.BodyForeach:
		return ip.evalForExpression(ctx, def.For, child)
	case ast.BodyCmd, ast.BodySh, ast.BodyJS, ast.BodyNode, ast.BodyPy, ast.BodyProse:
		return ip.runExecBody(ctx, def, child, insidePipelineStage)
	default:
		return value.StructuredValue{}, fmt.Errorf("interp: unsupported exec body kind %q", def.Kind)
	}
}

func (ip *Interpreter) runExecBody(ctx context.Context, def *ast.ExecDefinition, child *env.Environment, insidePipelineStage bool) (value.StructuredValue, error) {
	tctx := tmpl.Default
	if def.Kind == ast.BodyCmd {
		tctx = tmpl.ShellCommand
	} else if def.Kind == ast.BodySh {
		tctx = tmpl.ShellCode
	}
	rendered, err := ip.evalTemplate(ctx, def.Code, tctx, child)
	if err != nil {
		return value.StructuredValue{}, err
	}

	args := make([]string, 0, len(def.Params))
	for _, p := range def.Params {
		v, err := child.Get(p)
		if err != nil {
			continue
		}
		args = append(args, v.Value.Text)
	}

	if ip.Exec == nil {
		return value.StructuredValue{}, fmt.Errorf("interp: no executor configured")
	}
	sv, _, err := ip.Exec.Run(ctx, exec.Request{
		Kind:            def.Kind,
		Command:         rendered.Text,
		Args:            args,
		InPipelineStage: insidePipelineStage,
	})
	if err != nil {
		return value.StructuredValue{}, err
	}
	return sv.MergeSecurity(rendered.Metadata.Security), nil
}

// evalWhenValue evaluates a `when`-expression (Subtype=="value") to a
// StructuredValue. A branch matches when its Condition is truthy (or nil,
// the wildcard arm). With MatchAll==false the first match's Result is
// returned; with MatchAll==true every match's Result is evaluated and the
// last one is returned. No match yields null.
func (ip *Interpreter) evalWhenValue(ctx context.Context, w *ast.WhenExpression, e *env.Environment) (value.StructuredValue, error) {
	var last value.StructuredValue
	matched := false
	for _, branch := range w.Branches {
		truthy := true
		if branch.Condition != nil {
			cond, err := ip.evalExpr(ctx, branch.Condition, e)
			if err != nil {
				return value.StructuredValue{}, err
			}
			truthy = cond.IsTruthy()
		}
		if !truthy {
			continue
		}
		out, err := ip.evalExpr(ctx, branch.Result, e)
		if err != nil {
			return value.StructuredValue{}, err
		}
		last = out
		matched = true
		if !w.MatchAll {
			return out, nil
		}
	}
	if !matched {
		return value.Null(value.NewDescriptor()), nil
	}
	return last, nil
}

// parsePolicyConfig interprets a `/policy @p = union({...})` config
// expression into an env.PolicyConfig.
func parsePolicyConfig(ctx context.Context, ip *Interpreter, configExpr ast.Expression, e *env.Environment) (env.PolicyConfig, error) {
	v, err := ip.evalExpr(ctx, configExpr, e)
	if err != nil {
		return env.PolicyConfig{}, err
	}
	data, ok := v.Data.(map[string]interface{})
	if !ok {
		return env.PolicyConfig{}, &diagnostic.TypeMismatch{Expected: "object", Got: fmt.Sprintf("%T", v.Data), Loc: configExpr.Position()}
	}

	cfg := env.PolicyConfig{Labels: map[string]env.LabelRule{}, Auth: map[string]env.AuthBinding{}, Danger: map[string]bool{}}
	if caps, ok := data["capabilities"].(map[string]interface{}); ok {
		cfg.CapabilitiesAllow = stringSlice(caps["allow"])
		cfg.CapabilitiesDeny = stringSlice(caps["deny"])
	}
	if labels, ok := data["labels"].(map[string]interface{}); ok {
		for name, raw := range labels {
			if m, ok := raw.(map[string]interface{}); ok {
				cfg.Labels[name] = env.LabelRule{Allow: stringSlice(m["allow"]), Deny: stringSlice(m["deny"])}
			}
		}
	}
	if kc, ok := data["keychain"].(map[string]interface{}); ok {
		cfg.KeychainAllow = stringSlice(kc["allow"])
		cfg.KeychainDeny = stringSlice(kc["deny"])
	}
	if danger, ok := data["danger"].(map[string]interface{}); ok {
		for k, v := range danger {
			if b, ok := v.(bool); ok {
				cfg.Danger[k] = b
			}
		}
	}
	return cfg, nil
}

func stringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
