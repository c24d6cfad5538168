package interp

import (
	"context"

	"github.com/mlld-lang/mlld/core/ast"
	"github.com/mlld-lang/mlld/core/value"
	"github.com/mlld-lang/mlld/internal/diagnostic"
	"github.com/mlld-lang/mlld/internal/env"
	"github.com/mlld-lang/mlld/internal/guard"
)

// checkBefore runs the (never-bypassable) policy stack, then every
// registered `before` guard hook matching target, for an operation that has no
// pipeline-stage context to retry into (spec §4.6: show/run/exe/output
// directives outside a pipeline stage).
func (ip *Interpreter) checkBefore(target guard.Target, e *env.Environment) error {
	return ip.checkPhase(context.Background(), ast.GuardBefore, target, e, false)
}

// checkAfter runs every registered `after` guard hook matching target.
func (ip *Interpreter) checkAfter(target guard.Target, e *env.Environment) error {
	return ip.checkPhase(context.Background(), ast.GuardAfter, target, e, false)
}

func (ip *Interpreter) checkPhase(ctx context.Context, phase ast.GuardPhase, target guard.Target, e *env.Environment, insidePipelineStage bool) error {
	// No operation syntax grants an opt-in into policy.danger capabilities
	// yet, so every call site here passes false: danger-listed capabilities
	// (e.g. @keychain) are denied outright rather than silently allowed.
	if err := guard.CheckPolicy(e.PolicyStack(), target, false); err != nil {
		return err
	}

	guardFrame := env.GuardFrame{OpType: target.Op, OpName: target.Name}
	decision, err := guard.Evaluate(e.Guards(), phase, target, guardFrame, insidePipelineStage, ip.evalGuardBody(ctx, e))
	if err != nil {
		return err
	}
	if decision.Decision != diagnostic.DecisionAllow {
		// Deny always propagates as a fatal error. Retry only means
		// something inside a pipeline stage; resultFromErr (pipeline_wire.go)
		// unwraps it back into a pipeline.Retry there. Evaluate itself
		// already rejects a bare retry outside a pipeline stage, so a
		// Retry reaching here is always legitimate.
		return &decision
	}
	return nil
}

// evalGuardBody adapts the interpreter's when-expression evaluator to
// guard.Evaluator, keeping internal/guard decoupled from internal/interp
// (same discipline as internal/tmpl.Resolver).
func (ip *Interpreter) evalGuardBody(ctx context.Context, e *env.Environment) guard.Evaluator {
	return func(body *ast.WhenExpression, frame env.GuardFrame) (diagnostic.GuardDecision, error) {
		var result value.StructuredValue
		err := e.WithGuardFrame(frame, func(child *env.Environment) error {
			r, evalErr := ip.evalWhenValue(ctx, body, child)
			result = r
			return evalErr
		})
		if err != nil {
			return diagnostic.GuardDecision{}, err
		}
		return decisionFromValue(result), nil
	}
}

// decisionFromValue interprets a guard body's result value as a
// GuardDecision: a bare string "allow"/"deny"/"retry", or an object with a
// "decision" field plus optional "message"/"retryFrom" (spec §4.6). No
// retry hint is read from the value.
func decisionFromValue(v value.StructuredValue) diagnostic.GuardDecision {
	switch d := v.Data.(type) {
	case string:
		return diagnostic.GuardDecision{Decision: diagnostic.GuardDecisionKind(d)}
	case map[string]interface{}:
		dec := diagnostic.GuardDecision{Decision: diagnostic.DecisionAllow}
		if s, ok := d["decision"].(string); ok {
			dec.Decision = diagnostic.GuardDecisionKind(s)
		}
		if s, ok := d["message"].(string); ok {
			dec.Message = s
		}
		if f, ok := d["retryFrom"].(float64); ok {
			from := int(f)
			dec.RetryFrom = &from
		}
		return dec
	default:
		if v.IsTruthy() {
			return diagnostic.GuardDecision{Decision: diagnostic.DecisionAllow}
		}
		return diagnostic.GuardDecision{Decision: diagnostic.DecisionDeny}
	}
}
