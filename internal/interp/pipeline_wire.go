package interp

import (
	"context"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/forloop"
	"github.com/mlld-lang/mlld/internal/pipeline"
)

// resultFromErr folds an error into a pipeline.Result: a GuardDecision
// carrying Decision==retry becomes Retry(from, nil, message), with the
// guard's message as the retry reason and no @ctx.hint; everything else
// becomes Failure (spec §4.6: "retry is only legal inside a pipeline
// stage context", consumed here — the only place that context exists).
func resultFromErr(v value.StructuredValue, err error) pipeline.Result {
	if err == nil {
		return pipeline.Success(v)
	}
	if gd, ok := err.(*diagnostic.GuardDecision); ok && gd.Decision == diagnostic.DecisionRetry {
		return pipeline.Retry(gd.RetryFrom, nil, gd.Message)
	}
	return pipeline.Failure(err)
}

// evalPipelineExpression evaluates `base | @s1 | ... | @sn` as a
// standalone expression (spec §4.4). The base expression is re-evaluated
// on every rollback to stage 0, matching internal/pipeline's event-sourced
// "stage 0 has no cache epoch of its own" semantics.
func (ip *Interpreter) evalPipelineExpression(ctx context.Context, node *ast.PipelineExpression, e *env.Environment) (value.StructuredValue, error) {
	baseFunc := func(frame env.PipelineFrame) pipeline.Result {
		var v value.StructuredValue
		err := e.WithPipelineContext(frame, func(child *env.Environment) error {
			out, evalErr := ip.evalExpr(ctx, node.Base, child)
			v = out
			return evalErr
		})
		return resultFromErr(v, err)
	}
	return ip.runPipeline(ctx, baseFunc, node.Stages, e)
}

// runPipeline drives a pipeline.Machine whose stage 0 is baseFunc and
// whose remaining stages are each PipelineStage's ExecInvocation.
func (ip *Interpreter) runPipeline(ctx context.Context, baseFunc func(env.PipelineFrame) pipeline.Result, stages []ast.PipelineStage, e *env.Environment) (value.StructuredValue, error) {
	base := func(frame env.PipelineFrame, input value.StructuredValue) pipeline.Result {
		return baseFunc(frame)
	}
	fns := make([]pipeline.StageFunc, 0, len(stages))
	for _, s := range stages {
		fns = append(fns, ip.makeStageFunc(ctx, s, e))
	}
	m := pipeline.NewMachine(base, fns...)
	return m.Run()
}

// makeStageFunc wraps one `| @stage` segment as a pipeline.StageFunc: it
// runs the stage's ExecInvocation with the prior stage's output mapped to
// its first parameter when no explicit argument binds that parameter
// (spec §4.3), inside a pushed PipelineFrame
// so @ctx resolves, and folds a guard `retry` decision into
// pipeline.Retry.
func (ip *Interpreter) makeStageFunc(ctx context.Context, stage ast.PipelineStage, e *env.Environment) pipeline.StageFunc {
	return func(frame env.PipelineFrame, input value.StructuredValue) pipeline.Result {
		var out value.StructuredValue
		err := e.WithPipelineContext(frame, func(child *env.Environment) error {
			v, evalErr := ip.evalExecInvocationCore(ctx, stage.Call, child, true, &input)
			out = v
			return evalErr
		})
		return resultFromErr(out, err)
	}
}

// evalForExpression evaluates both the directive form (IsExpression==false,
// run for effects, result discarded by the caller) and the expression/
// comprehension form (IsExpression==true, optionally filtered by When),
// per spec §4.5.
func (ip *Interpreter) evalForExpression(ctx context.Context, node *ast.ForExpression, e *env.Environment) (value.StructuredValue, error) {
	return ip.runFor(ctx, node, e)
}

func (ip *Interpreter) runFor(ctx context.Context, node *ast.ForExpression, e *env.Environment) (value.StructuredValue, error) {
	source, err := ip.evalExpr(ctx, node.Source, e)
	if err != nil {
		return value.StructuredValue{}, err
	}
	items, err := toForItems(source)
	if err != nil {
		return value.StructuredValue{}, err
	}

	opts := forloop.Options{}
	if node.Options.Parallel {
		opts.Parallel = true
		if node.Options.Cap != nil {
			capVal, err := ip.evalExpr(ctx, node.Options.Cap, e)
			if err != nil {
				return value.StructuredValue{}, err
			}
			if f, ok := capVal.Data.(float64); ok {
				opts.Cap = int(f)
			}
		}
		if node.Options.Rate != nil {
			rateVal, err := ip.evalExpr(ctx, node.Options.Rate, e)
			if err != nil {
				return value.StructuredValue{}, err
			}
			if f, ok := rateVal.Data.(float64); ok {
				opts.Rate = f
			}
		}
		opts.Clock = e.Shared().Clock
	}

	// skipped records the When-filter's per-item decision; each goroutine
	// (sequential or parallel) only ever writes its own index, so this
	// needs no synchronization.
	skipped := make([]bool, len(items))

	outcomes, err := forloop.Run(ctx, items, opts, func(bodyCtx context.Context, item forloop.Item) (value.StructuredValue, error) {
		var result value.StructuredValue
		runErr := e.WithLoopFrame(forloop.LoopFrame(item, len(items)), func(child *env.Environment) error {
			if err := child.Set(value.NewVariable(node.Binding, item.Value, value.SourceLet, value.ScopeParameter)); err != nil {
				return err
			}
			if node.KeyBinding != "" && item.Key != nil {
				if err := child.Set(value.NewVariable(node.KeyBinding, value.Text(*item.Key, value.NewDescriptor()), value.SourceLet, value.ScopeParameter)); err != nil {
					return err
				}
			}
			if node.When != nil {
				cond, err := ip.evalExpr(bodyCtx, node.When, child)
				if err != nil {
					return err
				}
				if !cond.IsTruthy() {
					skipped[item.Index] = true
					return nil
				}
			}
			if node.IsExpression {
				out, err := ip.evalExpr(bodyCtx, node.ResultExpr, child)
				result = out
				return err
			}
			return ip.evalBlock(bodyCtx, node.Body, child)
		})
		switch runErr.(type) {
		case nil, *diagnostic.GuardDecision, *diagnostic.PolicyDenied:
			return result, runErr
		}
		// Any other body error is captured as data and the loop continues.
		return value.JSONValue(map[string]interface{}{"__error": true, "__message": runErr.Error()}, value.NewDescriptor()), nil
	})
	if err != nil {
		return value.StructuredValue{}, err
	}

	if !node.IsExpression {
		return value.Null(value.NewDescriptor()), nil
	}
	for i := range outcomes {
		outcomes[i].Skip = skipped[outcomes[i].Item.Index]
	}
	collected := forloop.Collect(outcomes)
	return value.JSONValue(collected, value.NewDescriptor(value.TaintTrusted)), nil
}

func toForItems(v value.StructuredValue) ([]forloop.Item, error) {
	switch d := v.Data.(type) {
	case []interface{}:
		items := make([]forloop.Item, len(d))
		for i, el := range d {
			items[i] = forloop.Item{Index: i, Value: wrapMxField(el, v.Metadata.Security)}
		}
		return items, nil
	case map[string]interface{}:
		items := make([]forloop.Item, 0, len(d))
		i := 0
		for k, el := range d {
			key := k
			items = append(items, forloop.Item{Index: i, Key: &key, Value: wrapMxField(el, v.Metadata.Security)})
			i++
		}
		return items, nil
	default:
		return nil, &diagnostic.TypeMismatch{Expected: "array or object", Got: string(v.Kind)}
	}
}
